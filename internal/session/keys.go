package session

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// KeySet — ключ подписи сессионных токенов и его публикация в формате JWKS.
// Проверка подписи идёт через keyfunc поверх того же хранилища jwkset,
// что отдаётся наружу на /.well-known/jwks.json.
type KeySet struct {
	private *rsa.PrivateKey
	kid     string
	storage jwkset.Storage
	keyfunc keyfunc.Keyfunc
}

// LoadPrivateKey разбирает RSA-ключ из PEM (PKCS#1 или PKCS#8).
// Пустой PEM — генерируется эфемерный ключ 2048 бит, о чём пишется WARN:
// выданные токены не переживут перезапуск процесса.
func LoadPrivateKey(pemData string, logger *slog.Logger) (*rsa.PrivateKey, error) {
	if pemData == "" {
		logger.Warn("LMS_JWT_PRIVATE_KEY не задан — сгенерирован эфемерный ключ, сессии не переживут перезапуск")
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("ошибка генерации RSA-ключа: %w", err)
		}
		return key, nil
	}

	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("ключ подписи: PEM-блок не найден")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("ключ подписи: ожидается RSA в PKCS#1 или PKCS#8: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("ключ подписи: ожидается RSA, получен %T", parsed)
	}
	return key, nil
}

// NewKeySet создаёт набор ключей из приватного RSA-ключа.
// kid вычисляется как отпечаток SHA-256 публичного ключа.
func NewKeySet(ctx context.Context, key *rsa.PrivateKey) (*KeySet, error) {
	if key.N.BitLen() < 2048 {
		return nil, fmt.Errorf("ключ подписи: длина %d бит, требуется не менее 2048", key.N.BitLen())
	}

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации публичного ключа: %w", err)
	}
	sum := sha256.Sum256(der)
	kid := base64.RawURLEncoding.EncodeToString(sum[:12])

	jwk, err := jwkset.NewJWKFromKey(&key.PublicKey, jwkset.JWKOptions{
		Metadata: jwkset.JWKMetadataOptions{
			ALG: jwkset.AlgRS256,
			KID: kid,
			USE: jwkset.UseSig,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания JWK: %w", err)
	}

	storage := jwkset.NewMemoryStorage()
	if err := storage.KeyWrite(ctx, jwk); err != nil {
		return nil, fmt.Errorf("ошибка записи JWK: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &KeySet{
		private: key,
		kid:     kid,
		storage: storage,
		keyfunc: kf,
	}, nil
}

// KID возвращает идентификатор ключа.
func (k *KeySet) KID() string {
	return k.kid
}

// Sign подписывает claims ключом RS256 с заголовком kid.
func (k *KeySet) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = k.kid
	return token.SignedString(k.private)
}

// Keyfunc возвращает jwt.Keyfunc для проверки подписи.
func (k *KeySet) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return k.keyfunc.KeyfuncCtx(ctx)
}

// JWKS возвращает публичный набор ключей в формате JSON.
func (k *KeySet) JWKS(ctx context.Context) (json.RawMessage, error) {
	return k.storage.JSONPublic(ctx)
}
