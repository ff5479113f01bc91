// Пакет ratelimit — ограничение частоты попыток входа (фиксированное окно в Redis).
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ошибки лимитера.
var (
	// ErrTooManyAttempts — превышено число попыток в текущем окне.
	ErrTooManyAttempts = errors.New("слишком много попыток входа")
	// ErrUnavailable — Redis недоступен.
	ErrUnavailable = errors.New("лимитер недоступен")
)

// releaseScript уменьшает счётчик, только если он ещё существует:
// DECR по истёкшему ключу создал бы отрицательный счётчик без TTL.
var releaseScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 and tonumber(redis.call("GET", KEYS[1])) > 0 then
	return redis.call("DECR", KEYS[1])
end
return 0
`)

// LoginLimiter считает попытки входа по email и по IP-адресу.
// Счётчик создаётся первой попыткой и живёт window; при превышении max
// попытки отклоняются до истечения окна.
type LoginLimiter struct {
	redis  redis.UniversalClient
	prefix string
	max    int
	window time.Duration
}

// NewLoginLimiter создаёт лимитер попыток входа.
func NewLoginLimiter(client redis.UniversalClient, max int, window time.Duration) *LoginLimiter {
	return &LoginLimiter{
		redis:  client,
		prefix: "lms:login",
		max:    max,
		window: window,
	}
}

func (l *LoginLimiter) emailKey(email string) string {
	return l.prefix + ":email:" + strings.ToLower(strings.TrimSpace(email))
}

func (l *LoginLimiter) ipKey(ip string) string {
	return l.prefix + ":ip:" + ip
}

// Check регистрирует попытку входа и возвращает ErrTooManyAttempts при превышении лимита.
// Пустой ip не учитывается.
func (l *LoginLimiter) Check(ctx context.Context, email, ip string) error {
	if err := l.hit(ctx, l.emailKey(email)); err != nil {
		return err
	}
	if ip != "" {
		// Лимит по IP шире: один адрес может обслуживать несколько пользователей
		if err := l.hitMax(ctx, l.ipKey(ip), l.max*5); err != nil {
			return err
		}
	}
	return nil
}

// Reset вызывается после успешного входа: сбрасывает счётчик email и
// снимает с IP засчитанную попытку, так что успешные входы пользователей
// за общим адресом (NAT) не расходуют лимит IP.
func (l *LoginLimiter) Reset(ctx context.Context, email, ip string) error {
	if err := l.redis.Del(ctx, l.emailKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ip == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.redis, []string{l.ipKey(ip)}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RetryAfter возвращает оставшееся время блокировки для email (0 — не заблокирован).
func (l *LoginLimiter) RetryAfter(ctx context.Context, email string) time.Duration {
	ttl, err := l.redis.TTL(ctx, l.emailKey(email)).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}

func (l *LoginLimiter) hit(ctx context.Context, key string) error {
	return l.hitMax(ctx, key, l.max)
}

func (l *LoginLimiter) hitMax(ctx context.Context, key string, max int) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count > int64(max) {
		return ErrTooManyAttempts
	}
	return nil
}
