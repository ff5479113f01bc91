package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
)

// PurchaseRequestRepository — интерфейс доступа к таблице purchase_requests.
type PurchaseRequestRepository interface {
	// Create создаёт заявку.
	Create(ctx context.Context, pr *model.PurchaseRequest) error
	// GetByID возвращает заявку по UUID.
	GetByID(ctx context.Context, id string) (*model.PurchaseRequest, error)
	// GetByIDForUpdate возвращает заявку с блокировкой строки до конца транзакции.
	GetByIDForUpdate(ctx context.Context, id string) (*model.PurchaseRequest, error)
	// List возвращает заявки по фильтру, новые первыми.
	List(ctx context.Context, filter model.PurchaseRequestFilter, limit, offset int) ([]*model.PurchaseRequest, error)
	// Count возвращает количество заявок по фильтру.
	Count(ctx context.Context, filter model.PurchaseRequestFilter) (int, error)
	// SetReview фиксирует решение администратора. Обновляет только заявку в статусе pending;
	// если заявка уже рассмотрена — ErrConflict.
	SetReview(ctx context.Context, id, status, reviewerID string, note *string, reviewedAt time.Time) error
	// Delete удаляет заявку в любом статусе.
	Delete(ctx context.Context, id string) error
	// DeletePending удаляет заявку, только если она в статусе pending и принадлежит userID.
	// Возвращает false, если условие не выполнено.
	DeletePending(ctx context.Context, id, userID string) (bool, error)
}

// purchaseRequestRepo — реализация PurchaseRequestRepository.
type purchaseRequestRepo struct {
	db DBTX
}

// NewPurchaseRequestRepository создаёт репозиторий заявок на покупку.
func NewPurchaseRequestRepository(db DBTX) PurchaseRequestRepository {
	return &purchaseRequestRepo{db: db}
}

const purchaseRequestColumns = `id, user_id, item_type, item_id, item_title, amount, currency,
	message, status, admin_note, reviewed_by, reviewed_at, created_at`

func scanPurchaseRequest(row pgx.Row) (*model.PurchaseRequest, error) {
	pr := &model.PurchaseRequest{}
	err := row.Scan(
		&pr.ID, &pr.UserID, &pr.ItemType, &pr.ItemID, &pr.ItemTitle, &pr.Amount, &pr.Currency,
		&pr.Message, &pr.Status, &pr.AdminNote, &pr.ReviewedBy, &pr.ReviewedAt, &pr.CreatedAt,
	)
	return pr, err
}

func (r *purchaseRequestRepo) Create(ctx context.Context, pr *model.PurchaseRequest) error {
	query := `
		INSERT INTO purchase_requests (id, user_id, item_type, item_id, item_title,
			amount, currency, message, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		pr.ID, pr.UserID, pr.ItemType, pr.ItemID, pr.ItemTitle,
		pr.Amount, pr.Currency, pr.Message, pr.Status,
	).Scan(&pr.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: учётная запись заявителя не существует", ErrNotFound)
		}
		return fmt.Errorf("ошибка создания заявки: %w", err)
	}
	return nil
}

func (r *purchaseRequestRepo) GetByID(ctx context.Context, id string) (*model.PurchaseRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM purchase_requests WHERE id = $1`, purchaseRequestColumns)
	return r.getOne(ctx, query, id)
}

func (r *purchaseRequestRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.PurchaseRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM purchase_requests WHERE id = $1 FOR UPDATE`, purchaseRequestColumns)
	return r.getOne(ctx, query, id)
}

func (r *purchaseRequestRepo) getOne(ctx context.Context, query, id string) (*model.PurchaseRequest, error) {
	pr, err := scanPurchaseRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения заявки: %w", err)
	}
	return pr, nil
}

// purchaseRequestConditions строит условия WHERE по фильтру.
func purchaseRequestConditions(filter model.PurchaseRequestFilter) ([]string, []any) {
	var conditions []string
	var args []any

	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.ItemType != nil {
		args = append(args, *filter.ItemType)
		conditions = append(conditions, fmt.Sprintf("item_type = $%d", len(args)))
	}
	return conditions, args
}

func (r *purchaseRequestRepo) List(ctx context.Context, filter model.PurchaseRequestFilter, limit, offset int) ([]*model.PurchaseRequest, error) {
	conditions, args := purchaseRequestConditions(filter)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM purchase_requests
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, purchaseRequestColumns, buildWhere(conditions), argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка заявок: %w", err)
	}
	defer rows.Close()

	var result []*model.PurchaseRequest
	for rows.Next() {
		pr, err := scanPurchaseRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		result = append(result, pr)
	}
	return result, rows.Err()
}

func (r *purchaseRequestRepo) Count(ctx context.Context, filter model.PurchaseRequestFilter) (int, error) {
	conditions, args := purchaseRequestConditions(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM purchase_requests %s`, buildWhere(conditions))

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта заявок: %w", err)
	}
	return count, nil
}

func (r *purchaseRequestRepo) SetReview(ctx context.Context, id, status, reviewerID string, note *string, reviewedAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE purchase_requests
		SET status = $2, reviewed_by = $3, admin_note = $4, reviewed_at = $5
		WHERE id = $1 AND status = 'pending'`,
		id, status, reviewerID, note, reviewedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения решения по заявке: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: заявка %s уже рассмотрена или удалена", ErrConflict, id)
	}
	return nil
}

func (r *purchaseRequestRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM purchase_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления заявки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *purchaseRequestRepo) DeletePending(ctx context.Context, id, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM purchase_requests
		WHERE id = $1 AND user_id = $2 AND status = 'pending'`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("ошибка отмены заявки: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
