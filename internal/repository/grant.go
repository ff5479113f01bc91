package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
)

// GrantRepository — интерфейс доступа к записям о доступе:
// enrollments (курсы) и resource_purchases (ресурсы).
//
// Уникальность пар (user_id, course_id) и (user_id, resource_id) обеспечивает БД,
// поэтому параллельные одобрения не создают повторный доступ.
type GrantRepository interface {
	// HasEnrollment сообщает, зачислен ли пользователь на курс.
	HasEnrollment(ctx context.Context, userID, courseID string) (bool, error)
	// HasCompletedResourcePurchase сообщает, есть ли завершённая покупка ресурса.
	HasCompletedResourcePurchase(ctx context.Context, userID, resourceID string) (bool, error)
	// GrantEnrollment создаёт зачисление, если его ещё нет.
	// created = false — зачисление уже существовало, запись не изменена.
	GrantEnrollment(ctx context.Context, e *model.Enrollment) (created bool, err error)
	// GrantResourcePurchase создаёт завершённую покупку ресурса либо переводит
	// существующую незавершённую запись в completed.
	// created = false — завершённая покупка уже существовала.
	GrantResourcePurchase(ctx context.Context, p *model.ResourcePurchase) (created bool, err error)
	// ListEnrollments возвращает зачисления пользователя.
	ListEnrollments(ctx context.Context, userID string) ([]*model.Enrollment, error)
	// ListResourcePurchases возвращает покупки ресурсов пользователя.
	ListResourcePurchases(ctx context.Context, userID string) ([]*model.ResourcePurchase, error)
}

// grantRepo — реализация GrantRepository.
type grantRepo struct {
	db DBTX
}

// NewGrantRepository создаёт репозиторий записей о доступе.
func NewGrantRepository(db DBTX) GrantRepository {
	return &grantRepo{db: db}
}

func (r *grantRepo) HasEnrollment(ctx context.Context, userID, courseID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2)`,
		userID, courseID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки зачисления: %w", err)
	}
	return exists, nil
}

func (r *grantRepo) HasCompletedResourcePurchase(ctx context.Context, userID, resourceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM resource_purchases
			WHERE user_id = $1 AND resource_id = $2 AND status = 'completed'
		)`,
		userID, resourceID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки покупки ресурса: %w", err)
	}
	return exists, nil
}

func (r *grantRepo) GrantEnrollment(ctx context.Context, e *model.Enrollment) (bool, error) {
	query := `
		INSERT INTO enrollments (id, user_id, course_id, enrolled_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, course_id) DO NOTHING
		RETURNING id`

	var id string
	err := r.db.QueryRow(ctx, query, e.ID, e.UserID, e.CourseID, e.EnrolledAt, e.ExpiresAt).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Зачисление уже есть — повторный доступ не создаётся
			return false, nil
		}
		if isForeignKeyViolation(err) {
			return false, fmt.Errorf("%w: курс или пользователь удалён", ErrNotFound)
		}
		return false, fmt.Errorf("ошибка создания зачисления: %w", err)
	}
	return true, nil
}

func (r *grantRepo) GrantResourcePurchase(ctx context.Context, p *model.ResourcePurchase) (bool, error) {
	query := `
		INSERT INTO resource_purchases (id, user_id, resource_id, amount, currency, status, purchased_at)
		VALUES ($1, $2, $3, $4, $5, 'completed', $6)
		ON CONFLICT (user_id, resource_id) DO UPDATE
		SET status = 'completed', amount = EXCLUDED.amount,
			currency = EXCLUDED.currency, purchased_at = EXCLUDED.purchased_at
		WHERE resource_purchases.status <> 'completed'
		RETURNING id`

	var id string
	err := r.db.QueryRow(ctx, query,
		p.ID, p.UserID, p.ResourceID, p.Amount, p.Currency, p.PurchasedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Завершённая покупка уже есть
			return false, nil
		}
		if isForeignKeyViolation(err) {
			return false, fmt.Errorf("%w: ресурс или пользователь удалён", ErrNotFound)
		}
		return false, fmt.Errorf("ошибка создания покупки ресурса: %w", err)
	}
	p.ID = id
	p.Status = model.ResourcePurchaseCompleted
	return true, nil
}

func (r *grantRepo) ListEnrollments(ctx context.Context, userID string) ([]*model.Enrollment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, course_id, enrolled_at, expires_at
		FROM enrollments
		WHERE user_id = $1
		ORDER BY enrolled_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения зачислений: %w", err)
	}
	defer rows.Close()

	var result []*model.Enrollment
	for rows.Next() {
		e := &model.Enrollment{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.CourseID, &e.EnrolledAt, &e.ExpiresAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования зачисления: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *grantRepo) ListResourcePurchases(ctx context.Context, userID string) ([]*model.ResourcePurchase, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, resource_id, amount, currency, status, purchased_at
		FROM resource_purchases
		WHERE user_id = $1
		ORDER BY purchased_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения покупок ресурсов: %w", err)
	}
	defer rows.Close()

	var result []*model.ResourcePurchase
	for rows.Next() {
		p := &model.ResourcePurchase{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.ResourceID, &p.Amount, &p.Currency, &p.Status, &p.PurchasedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования покупки ресурса: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
