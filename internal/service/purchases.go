// purchases.go — заявки на покупку курсов и ресурсов с оплатой переводом.
//
// Жизненный цикл заявки: pending → approved | rejected. Одобрение выполняется
// одной транзакцией: блокировка заявки, смена статуса, выдача доступа
// и запись платежа. Любой сбой откатывает всё, заявка остаётся pending.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
	"github.com/adhikarisumit/lms-module/internal/domain/purchase"
	"github.com/adhikarisumit/lms-module/internal/domain/rbac"
	"github.com/adhikarisumit/lms-module/internal/notify"
	"github.com/adhikarisumit/lms-module/internal/repository"
	"github.com/adhikarisumit/lms-module/internal/session"
)

var purchaseReviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lms_purchase_reviews_total",
	Help: "Количество рассмотренных заявок на покупку по действию.",
}, []string{"action"})

const (
	maxMessageLength = 2000
	maxNoteLength    = 2000
)

// PurchaseService — сервис заявок на покупку.
type PurchaseService struct {
	repos    *repository.Repositories
	tx       Transactor
	catalog  *CatalogService
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewPurchaseService создаёт сервис заявок. now может быть nil (time.Now).
func NewPurchaseService(
	repos *repository.Repositories,
	tx Transactor,
	catalog *CatalogService,
	notifier Notifier,
	now func() time.Time,
	logger *slog.Logger,
) *PurchaseService {
	if now == nil {
		now = time.Now
	}
	return &PurchaseService{
		repos:    repos,
		tx:       tx,
		catalog:  catalog,
		notifier: notifier,
		now:      now,
		logger:   logger.With(slog.String("component", "purchase_service")),
	}
}

// Create создаёт заявку в статусе pending. Название, цена и валюта
// фиксируются на момент создания. Несколько ожидающих заявок на одну
// позицию допускаются.
func (s *PurchaseService) Create(ctx context.Context, requesterID, itemType, itemID string, message *string) (*model.PurchaseRequest, error) {
	if !model.IsValidItemType(itemType) {
		return nil, fmt.Errorf("%w: тип позиции должен быть course или resource", ErrValidation)
	}
	message, err := optionalText(message, maxMessageLength, "сообщение")
	if err != nil {
		return nil, err
	}

	requester, err := s.repos.Accounts.GetByID(ctx, requesterID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if requester.Frozen {
		return nil, ErrAccountFrozen
	}

	item, err := s.catalog.Item(ctx, itemType, itemID)
	if err != nil {
		return nil, err
	}

	granted, err := s.hasGrant(ctx, s.repos, requesterID, item)
	if err != nil {
		return nil, err
	}
	if granted {
		return nil, ErrAlreadyGranted
	}

	pr := &model.PurchaseRequest{
		ID:        uuid.New().String(),
		UserID:    requesterID,
		ItemType:  item.Type,
		ItemID:    item.ID,
		ItemTitle: item.Title,
		Amount:    item.Price,
		Currency:  item.Currency,
		Message:   message,
		Status:    model.PurchaseStatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repos.Purchases.Create(ctx, pr); err != nil {
		return nil, mapRepoErr(err)
	}

	s.logger.Info("Создана заявка на покупку",
		slog.String("request_id", pr.ID),
		slog.String("user_id", requesterID),
		slog.String("item_type", pr.ItemType),
		slog.String("item_id", pr.ItemID),
	)
	return pr, nil
}

func (s *PurchaseService) hasGrant(ctx context.Context, repos *repository.Repositories, userID string, item *model.CatalogItem) (bool, error) {
	if item.Type == model.ItemTypeCourse {
		return repos.Grants.HasEnrollment(ctx, userID, item.ID)
	}
	return repos.Grants.HasCompletedResourcePurchase(ctx, userID, item.ID)
}

// Review одобряет или отклоняет заявку.
//
// Заявка блокируется SELECT ... FOR UPDATE, поэтому параллельные решения
// по одной заявке выполняются последовательно: второе получает
// ErrAlreadyReviewed. Существующий доступ не считается ошибкой: заявка
// одобряется, новый доступ и платёж не создаются.
func (s *PurchaseService) Review(ctx context.Context, reviewer *session.Identity, requestID, action string, note *string) (*model.ReviewOutcome, error) {
	if reviewer == nil || !rbac.Can(reviewer.Tier, rbac.OpReviewPurchase, rbac.TierNone) {
		return nil, ErrForbidden
	}
	if !purchase.IsValidAction(action) {
		return nil, fmt.Errorf("%w: действие должно быть approve или reject", ErrValidation)
	}
	note, err := optionalText(note, maxNoteLength, "комментарий")
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(requestID); err != nil {
		return nil, ErrNotFound
	}

	outcome := &model.ReviewOutcome{}
	var requester *model.Account

	err = s.tx.InTx(ctx, func(repos *repository.Repositories) error {
		pr, err := repos.Purchases.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return mapRepoErr(err)
		}

		next, err := purchase.Transition(pr.Status, action)
		if err != nil {
			var te *purchase.TransitionError
			if errors.As(err, &te) {
				return ErrAlreadyReviewed
			}
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}

		now := s.now().UTC()
		if err := repos.Purchases.SetReview(ctx, pr.ID, next, reviewer.AccountID, note, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrAlreadyReviewed
			}
			return err
		}
		pr.Status = next
		pr.ReviewedBy = &reviewer.AccountID
		pr.ReviewedAt = &now
		pr.AdminNote = note
		outcome.Request = pr

		if next == model.PurchaseStatusApproved {
			if err := s.grant(ctx, repos, pr, now, outcome); err != nil {
				return err
			}
		}

		requester, err = repos.Accounts.GetByID(ctx, pr.UserID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	purchaseReviewsTotal.WithLabelValues(action).Inc()
	s.logger.Info("Заявка на покупку рассмотрена",
		slog.String("request_id", requestID),
		slog.String("status", outcome.Request.Status),
		slog.String("reviewer_id", reviewer.AccountID),
		slog.Bool("grant_created", outcome.GrantCreated),
	)

	if requester != nil {
		s.notifyRequester(requester, outcome.Request)
	}
	return outcome, nil
}

// grant выдаёт доступ по одобренной заявке. Позиция читается из БД,
// а не из кэша: срок доступа берётся актуальный.
func (s *PurchaseService) grant(ctx context.Context, repos *repository.Repositories, pr *model.PurchaseRequest, now time.Time, outcome *model.ReviewOutcome) error {
	switch pr.ItemType {
	case model.ItemTypeCourse:
		course, err := repos.Catalog.GetCourse(ctx, pr.ItemID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrItemNotFound
			}
			return err
		}

		created, err := repos.Grants.GrantEnrollment(ctx, &model.Enrollment{
			ID:         uuid.New().String(),
			UserID:     pr.UserID,
			CourseID:   course.ID,
			EnrolledAt: now,
			ExpiresAt:  model.AddMonths(now, course.AccessDurationMonths),
		})
		if err != nil {
			return fmt.Errorf("зачисление на курс: %w", err)
		}
		outcome.GrantCreated = created
		if !created {
			return nil
		}

		payment := &model.Payment{
			ID:                uuid.New().String(),
			UserID:            &pr.UserID,
			CourseID:          &course.ID,
			PurchaseRequestID: &pr.ID,
			Amount:            pr.Amount,
			Currency:          pr.Currency,
			Status:            model.PaymentStatusCompleted,
			Method:            model.PaymentMethodTransfer,
			CreatedAt:         now,
		}
		if err := repos.Payments.Create(ctx, payment); err != nil {
			return fmt.Errorf("запись платежа: %w", err)
		}
		outcome.Payment = payment
		return nil

	case model.ItemTypeResource:
		if _, err := repos.Catalog.GetResource(ctx, pr.ItemID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrItemNotFound
			}
			return err
		}

		created, err := repos.Grants.GrantResourcePurchase(ctx, &model.ResourcePurchase{
			ID:          uuid.New().String(),
			UserID:      pr.UserID,
			ResourceID:  pr.ItemID,
			Amount:      pr.Amount,
			Currency:    pr.Currency,
			Status:      model.ResourcePurchaseCompleted,
			PurchasedAt: now,
		})
		if err != nil {
			return fmt.Errorf("покупка ресурса: %w", err)
		}
		outcome.GrantCreated = created
		return nil

	default:
		return fmt.Errorf("неизвестный тип позиции %q", pr.ItemType)
	}
}

// notifyRequester уведомляет заявителя о решении. Сбой на результат не влияет.
func (s *PurchaseService) notifyRequester(requester *model.Account, pr *model.PurchaseRequest) {
	kind := notify.KindPurchaseRejected
	if pr.Status == model.PurchaseStatusApproved {
		kind = notify.KindPurchaseApproved
	}

	data := map[string]string{
		"request_id": pr.ID,
		"item_type":  pr.ItemType,
		"item_title": pr.ItemTitle,
	}
	if pr.AdminNote != nil {
		data["note"] = *pr.AdminNote
	}

	s.notifier.SendAsync(notify.Message{
		Kind: kind,
		To:   requester.Email,
		Name: requester.Name,
		Data: data,
	})
}

// Cancel отменяет собственную заявку в статусе pending (заявка удаляется).
func (s *PurchaseService) Cancel(ctx context.Context, requesterID, requestID string) error {
	if _, err := uuid.Parse(requestID); err != nil {
		return ErrNotFound
	}

	pr, err := s.repos.Purchases.GetByID(ctx, requestID)
	if err != nil {
		return mapRepoErr(err)
	}
	if pr.UserID != requesterID {
		return ErrForbidden
	}
	if !purchase.CanCancel(pr.Status) {
		return ErrInvalidState
	}

	// Удаление условное: заявку могли рассмотреть между чтением и удалением
	deleted, err := s.repos.Purchases.DeletePending(ctx, requestID, requesterID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrInvalidState
	}

	s.logger.Info("Заявка на покупку отменена заявителем",
		slog.String("request_id", requestID),
		slog.String("user_id", requesterID),
	)
	return nil
}

// Delete удаляет заявку в любом статусе. Выданный доступ и платежи сохраняются.
func (s *PurchaseService) Delete(ctx context.Context, actor *session.Identity, requestID string) error {
	if actor == nil || !rbac.Can(actor.Tier, rbac.OpDeletePurchase, rbac.TierNone) {
		return ErrForbidden
	}
	if _, err := uuid.Parse(requestID); err != nil {
		return ErrNotFound
	}

	if err := s.repos.Purchases.Delete(ctx, requestID); err != nil {
		return mapRepoErr(err)
	}

	s.logger.Info("Заявка на покупку удалена администратором",
		slog.String("request_id", requestID),
		slog.String("actor_id", actor.AccountID),
	)
	return nil
}

// Get возвращает заявку владельцу или администратору.
// Чужая заявка для студента выглядит как несуществующая.
func (s *PurchaseService) Get(ctx context.Context, actor *session.Identity, requestID string) (*model.PurchaseRequest, error) {
	if _, err := uuid.Parse(requestID); err != nil {
		return nil, ErrNotFound
	}

	pr, err := s.repos.Purchases.GetByID(ctx, requestID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if pr.UserID != actor.AccountID && !rbac.Can(actor.Tier, rbac.OpListPurchases, rbac.TierNone) {
		return nil, ErrNotFound
	}
	return pr, nil
}

// ListMine возвращает заявки пользователя.
func (s *PurchaseService) ListMine(ctx context.Context, requesterID string, limit, offset int) ([]*model.PurchaseRequest, int, error) {
	filter := model.PurchaseRequestFilter{UserID: &requesterID}
	return s.list(ctx, filter, limit, offset)
}

// List возвращает заявки всех пользователей по фильтру.
func (s *PurchaseService) List(ctx context.Context, actor *session.Identity, filter model.PurchaseRequestFilter, limit, offset int) ([]*model.PurchaseRequest, int, error) {
	if actor == nil || !rbac.Can(actor.Tier, rbac.OpListPurchases, rbac.TierNone) {
		return nil, 0, ErrForbidden
	}
	if filter.Status != nil && !purchase.IsValidStatus(*filter.Status) {
		return nil, 0, fmt.Errorf("%w: неизвестный статус %q", ErrValidation, *filter.Status)
	}
	if filter.ItemType != nil && !model.IsValidItemType(*filter.ItemType) {
		return nil, 0, fmt.Errorf("%w: неизвестный тип позиции %q", ErrValidation, *filter.ItemType)
	}
	if filter.UserID != nil {
		if _, err := uuid.Parse(*filter.UserID); err != nil {
			return nil, 0, fmt.Errorf("%w: некорректный user_id", ErrValidation)
		}
	}
	return s.list(ctx, filter, limit, offset)
}

func (s *PurchaseService) list(ctx context.Context, filter model.PurchaseRequestFilter, limit, offset int) ([]*model.PurchaseRequest, int, error) {
	items, err := s.repos.Purchases.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repos.Purchases.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// optionalText нормализует необязательный текст: пробелы обрезаются,
// пустая строка превращается в nil.
func optionalText(text *string, max int, field string) (*string, error) {
	if text == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*text)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > max {
		return nil, fmt.Errorf("%w: %s длиннее %d символов", ErrValidation, field, max)
	}
	return &trimmed, nil
}
