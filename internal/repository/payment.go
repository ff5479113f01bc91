package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
)

// PaymentRepository — журнал платежей (таблица payments).
// Записи только добавляются: операций изменения и удаления нет.
type PaymentRepository interface {
	// Create добавляет запись о платеже.
	Create(ctx context.Context, p *model.Payment) error
	// List возвращает платежи по фильтру, новые первыми.
	List(ctx context.Context, filter model.PaymentFilter, limit, offset int) ([]*model.Payment, error)
	// Count возвращает количество платежей по фильтру.
	Count(ctx context.Context, filter model.PaymentFilter) (int, error)
	// Summary возвращает сумму завершённых платежей по валютам.
	Summary(ctx context.Context) ([]model.PaymentTotal, error)
}

// paymentRepo — реализация PaymentRepository.
type paymentRepo struct {
	db DBTX
}

// NewPaymentRepository создаёт репозиторий журнала платежей.
func NewPaymentRepository(db DBTX) PaymentRepository {
	return &paymentRepo{db: db}
}

const paymentColumns = `id, user_id, course_id, purchase_request_id, amount, currency,
	status, method, created_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.CourseID, &p.PurchaseRequestID, &p.Amount, &p.Currency,
		&p.Status, &p.Method, &p.CreatedAt,
	)
	return p, err
}

func (r *paymentRepo) Create(ctx context.Context, p *model.Payment) error {
	query := `
		INSERT INTO payments (id, user_id, course_id, purchase_request_id, amount, currency, status, method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, p.UserID, p.CourseID, p.PurchaseRequestID, p.Amount, p.Currency, p.Status, p.Method,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания платежа: %w", err)
	}
	return nil
}

// paymentConditions строит условия WHERE по фильтру.
func paymentConditions(filter model.PaymentFilter) ([]string, []any) {
	var conditions []string
	var args []any

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.CourseID != nil {
		args = append(args, *filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	return conditions, args
}

func (r *paymentRepo) List(ctx context.Context, filter model.PaymentFilter, limit, offset int) ([]*model.Payment, error) {
	conditions, args := paymentConditions(filter)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM payments
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, paymentColumns, buildWhere(conditions), argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка платежей: %w", err)
	}
	defer rows.Close()

	var result []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования платежа: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *paymentRepo) Count(ctx context.Context, filter model.PaymentFilter) (int, error) {
	conditions, args := paymentConditions(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM payments %s`, buildWhere(conditions))

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта платежей: %w", err)
	}
	return count, nil
}

func (r *paymentRepo) Summary(ctx context.Context) ([]model.PaymentTotal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT currency, COALESCE(SUM(amount), 0), COUNT(*)
		FROM payments
		WHERE status = 'completed'
		GROUP BY currency
		ORDER BY currency`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сводки платежей: %w", err)
	}
	defer rows.Close()

	var result []model.PaymentTotal
	for rows.Next() {
		var t model.PaymentTotal
		if err := rows.Scan(&t.Currency, &t.Amount, &t.Count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сводки платежей: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
