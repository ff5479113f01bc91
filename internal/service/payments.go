// payments.go — журнал платежей для отчётности администраторов.
// Журнал только пополняется: изменения и удаления записей не предусмотрены.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
	"github.com/adhikarisumit/lms-module/internal/domain/rbac"
	"github.com/adhikarisumit/lms-module/internal/repository"
	"github.com/adhikarisumit/lms-module/internal/session"
)

// PaymentService — чтение журнала платежей.
type PaymentService struct {
	payments repository.PaymentRepository
	logger   *slog.Logger
}

// NewPaymentService создаёт сервис журнала платежей.
func NewPaymentService(payments repository.PaymentRepository, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		payments: payments,
		logger:   logger.With(slog.String("component", "payment_service")),
	}
}

// List возвращает платежи по фильтру и их общее количество.
func (s *PaymentService) List(ctx context.Context, actor *session.Identity, filter model.PaymentFilter, limit, offset int) ([]*model.Payment, int, error) {
	if actor == nil || !rbac.Can(actor.Tier, rbac.OpViewPayments, rbac.TierNone) {
		return nil, 0, ErrForbidden
	}
	for _, id := range []*string{filter.UserID, filter.CourseID} {
		if id != nil {
			if _, err := uuid.Parse(*id); err != nil {
				return nil, 0, fmt.Errorf("%w: некорректный UUID в фильтре", ErrValidation)
			}
		}
	}

	items, err := s.payments.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.payments.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Summary возвращает сумму завершённых платежей по валютам.
func (s *PaymentService) Summary(ctx context.Context, actor *session.Identity) ([]model.PaymentTotal, error) {
	if actor == nil || !rbac.Can(actor.Tier, rbac.OpViewPayments, rbac.TierNone) {
		return nil, ErrForbidden
	}
	return s.payments.Summary(ctx)
}
