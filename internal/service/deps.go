package service

import (
	"context"
	"errors"
	"time"

	"github.com/adhikarisumit/lms-module/internal/notify"
	"github.com/adhikarisumit/lms-module/internal/repository"
	"github.com/adhikarisumit/lms-module/internal/tokens"
)

// Transactor выполняет fn в транзакции с набором репозиториев поверх неё.
// Ошибка fn откатывает все изменения. Реализуется repository.TxRunner.
type Transactor interface {
	InTx(ctx context.Context, fn func(repos *repository.Repositories) error) error
}

// PasswordHasher — хеширование и проверка паролей. Реализуется password.Hasher.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// TokenStore — одноразовые токены. Реализуется tokens.Store.
type TokenStore interface {
	Issue(ctx context.Context, purpose tokens.Purpose, accountID, email string, ttl time.Duration) (string, error)
	Peek(ctx context.Context, purpose tokens.Purpose, token string) (*tokens.Claim, error)
	Consume(ctx context.Context, purpose tokens.Purpose, token string) (*tokens.Claim, error)
}

// Notifier — очередь уведомлений. Реализуется notify.Publisher.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) error
	SendAsync(msg notify.Message)
}

// mapRepoErr переводит ошибки репозиториев в ошибки сервисного слоя.
func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict
	default:
		return err
	}
}
