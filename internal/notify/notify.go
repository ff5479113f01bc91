// Пакет notify — исходящие уведомления (письма) через очередь в Redis.
//
// Сервис не отправляет почту сам: он кладёт JSON-сообщение в список Redis,
// который разбирает отдельный почтовый воркер. Успешный RPUSH означает,
// что уведомление принято к доставке.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Kind — тип уведомления.
type Kind string

const (
	KindEmailVerification Kind = "email_verification"
	KindPasswordReset     Kind = "password_reset"
	KindPurchaseApproved  Kind = "purchase_approved"
	KindPurchaseRejected  Kind = "purchase_rejected"
)

// ErrUnavailable — очередь уведомлений недоступна.
var ErrUnavailable = errors.New("очередь уведомлений недоступна")

// Message — уведомление для почтового воркера.
type Message struct {
	Kind      Kind              `json:"kind"`
	To        string            `json:"to"`
	Name      string            `json:"name,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// maxInFlight — предел одновременных фоновых отправок SendAsync.
const maxInFlight = 32

// Publisher публикует уведомления в список Redis.
type Publisher struct {
	redis  redis.UniversalClient
	queue  string
	logger *slog.Logger

	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewPublisher создаёт публикатор уведомлений в очередь queue.
func NewPublisher(client redis.UniversalClient, queue string, logger *slog.Logger) *Publisher {
	return &Publisher{
		redis:  client,
		queue:  queue,
		logger: logger.With(slog.String("component", "notify")),
		sem:    make(chan struct{}, maxInFlight),
	}
}

// Send ставит уведомление в очередь.
func (p *Publisher) Send(ctx context.Context, msg Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ошибка сериализации уведомления: %w", err)
	}

	if err := p.redis.RPush(ctx, p.queue, payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	p.logger.Debug("Уведомление поставлено в очередь",
		slog.String("kind", string(msg.Kind)),
		slog.String("queue", p.queue),
	)
	return nil
}

// SendAsync ставит уведомление в очередь в фоне, ошибка только логируется.
// Используется там, где сбой доставки не должен влиять на результат операции.
// Одновременно выполняется не более maxInFlight отправок: при заполнении
// вызывающий ждёт свободного слота. После Close сообщения отбрасываются с WARN.
func (p *Publisher) SendAsync(msg Message) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("Уведомление отброшено: публикатор остановлен",
			slog.String("kind", string(msg.Kind)),
		)
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.sem <- struct{}{}
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := p.Send(ctx, msg); err != nil {
			p.logger.Warn("Не удалось отправить уведомление",
				slog.String("kind", string(msg.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Close запрещает новые фоновые отправки и ждёт завершения начатых.
// Возвращает ctx.Err(), если ожидание прервано раньше.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
