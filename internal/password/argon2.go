// Пакет password — хеширование паролей argon2id в формате PHC:
// $argon2id$v=19$m=<KiB>,t=<итерации>,p=<потоки>$<соль>$<хеш>
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	// MinLength — минимальная длина пароля в байтах.
	MinLength = 8
	// MaxLength — максимальная длина пароля в байтах.
	MaxLength = 256
)

// Ошибки хеширования.
var (
	// ErrTooShort — пароль короче MinLength.
	ErrTooShort = fmt.Errorf("пароль должен содержать не менее %d символов", MinLength)
	// ErrTooLong — пароль длиннее MaxLength.
	ErrTooLong = fmt.Errorf("пароль должен содержать не более %d символов", MaxLength)
	// ErrInvalidHash — строка хеша не в формате PHC argon2id.
	ErrInvalidHash = errors.New("некорректный формат хеша пароля")
)

// Params — параметры argon2id.
type Params struct {
	// Memory — объём памяти в KiB
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams — параметры по умолчанию (рекомендации OWASP для argon2id).
var DefaultParams = Params{
	Memory:      64 * 1024,
	Time:        1,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// Hasher хеширует и проверяет пароли.
type Hasher struct {
	params Params
	// dummy — хеш случайного пароля для выравнивания времени ответа
	// при входе с несуществующим email
	dummy string
}

// NewHasher создаёт Hasher с указанными параметрами.
func NewHasher(params Params) (*Hasher, error) {
	if params.Memory < 8*1024 || params.Time < 1 || params.Parallelism < 1 ||
		params.SaltLength < 16 || params.KeyLength < 16 {
		return nil, fmt.Errorf("некорректные параметры argon2id: %+v", params)
	}

	h := &Hasher{params: params}

	secret := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("ошибка генерации случайных данных: %w", err)
	}
	dummy, err := h.hash(base64.RawStdEncoding.EncodeToString(secret))
	if err != nil {
		return nil, err
	}
	h.dummy = dummy

	return h, nil
}

// Validate проверяет длину пароля.
func Validate(password string) error {
	if len(password) < MinLength {
		return ErrTooShort
	}
	if len(password) > MaxLength {
		return ErrTooLong
	}
	return nil
}

// Hash возвращает PHC-строку argon2id для пароля.
func (h *Hasher) Hash(password string) (string, error) {
	if err := Validate(password); err != nil {
		return "", err
	}
	return h.hash(password)
}

func (h *Hasher) hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		h.params.Memory, h.params.Time, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify сравнивает пароль с PHC-строкой за постоянное время.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	p, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

// VerifyDummy выполняет проверку против случайного хеша и всегда возвращает false.
// Используется, когда учётной записи нет, чтобы время ответа не выдавало её отсутствие.
func (h *Hasher) VerifyDummy(password string) bool {
	_, _ = h.Verify(password, h.dummy)
	return false
}

// decode разбирает PHC-строку argon2id.
func decode(encoded string) (Params, []byte, []byte, error) {
	var p Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return p, nil, nil, ErrInvalidHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: неподдерживаемая версия %q", ErrInvalidHash, parts[2])
	}

	for _, kv := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return p, nil, nil, ErrInvalidHash
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil || n == 0 {
			return p, nil, nil, fmt.Errorf("%w: параметр %s", ErrInvalidHash, name)
		}
		switch name {
		case "m":
			p.Memory = uint32(n)
		case "t":
			p.Time = uint32(n)
		case "p":
			if n > 255 {
				return p, nil, nil, fmt.Errorf("%w: параметр p", ErrInvalidHash)
			}
			p.Parallelism = uint8(n)
		default:
			return p, nil, nil, fmt.Errorf("%w: неизвестный параметр %s", ErrInvalidHash, name)
		}
	}
	if p.Memory == 0 || p.Time == 0 || p.Parallelism == 0 {
		return p, nil, nil, fmt.Errorf("%w: не заданы параметры", ErrInvalidHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: соль", ErrInvalidHash)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, fmt.Errorf("%w: хеш", ErrInvalidHash)
	}

	return p, salt, key, nil
}
