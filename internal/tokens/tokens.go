// Пакет tokens — одноразовые токены в Redis: подтверждение email и сброс пароля.
//
// В Redis хранится только SHA-256 токена, сам токен уходит пользователю.
// Токен погашается атомарно через GETDEL, поэтому повторное использование невозможно.
package tokens

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Purpose — назначение токена.
type Purpose string

const (
	// PurposeEmailVerification — подтверждение email
	PurposeEmailVerification Purpose = "verify"
	// PurposePasswordReset — сброс пароля
	PurposePasswordReset Purpose = "reset"
)

// Ошибки хранилища токенов.
var (
	// ErrInvalidToken — токен не найден, истёк или уже использован.
	ErrInvalidToken = errors.New("токен недействителен или истёк")
	// ErrUnavailable — Redis недоступен.
	ErrUnavailable = errors.New("хранилище токенов недоступно")
)

// Claim — данные, привязанные к токену.
type Claim struct {
	// AccountID — UUID учётной записи
	AccountID string `json:"account_id"`
	// Email — адрес на момент выдачи; после смены email токен не подходит
	Email string `json:"email"`
	// IssuedAt — время выдачи (Unix)
	IssuedAt int64 `json:"iat"`
}

// Store — хранилище одноразовых токенов.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore создаёт хранилище токенов. Пустой prefix заменяется на "lms:token".
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "lms:token"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(purpose Purpose, token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + ":" + string(purpose) + ":" + hex.EncodeToString(sum[:])
}

// Issue создаёт токен для учётной записи и сохраняет его с TTL.
func (s *Store) Issue(ctx context.Context, purpose Purpose, accountID, email string, ttl time.Duration) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("ошибка генерации токена: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	payload, err := json.Marshal(Claim{AccountID: accountID, Email: email, IssuedAt: time.Now().Unix()})
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации токена: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(purpose, token), payload, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return token, nil
}

// Peek возвращает данные токена, не погашая его.
func (s *Store) Peek(ctx context.Context, purpose Purpose, token string) (*Claim, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	payload, err := s.redis.Get(ctx, s.key(purpose, token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decodeClaim(payload)
}

// Consume погашает токен и возвращает привязанные данные.
// Повторный вызов с тем же токеном возвращает ErrInvalidToken.
func (s *Store) Consume(ctx context.Context, purpose Purpose, token string) (*Claim, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	payload, err := s.redis.GetDel(ctx, s.key(purpose, token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return decodeClaim(payload)
}

func decodeClaim(payload []byte) (*Claim, error) {
	var claim Claim
	if err := json.Unmarshal(payload, &claim); err != nil {
		return nil, fmt.Errorf("%w: повреждённые данные", ErrInvalidToken)
	}
	return &claim, nil
}
