package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
)

// AccountRepository — интерфейс доступа к таблице accounts.
type AccountRepository interface {
	// Create создаёт учётную запись. Дубликат email (без учёта регистра) — ErrConflict.
	Create(ctx context.Context, a *model.Account) error
	// GetByID возвращает учётную запись по UUID.
	GetByID(ctx context.Context, id string) (*model.Account, error)
	// GetByIDForUpdate возвращает учётную запись с блокировкой строки до конца транзакции.
	GetByIDForUpdate(ctx context.Context, id string) (*model.Account, error)
	// GetByEmail возвращает учётную запись по email без учёта регистра.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// List возвращает список учётных записей с фильтрацией.
	List(ctx context.Context, filter model.AccountFilter, limit, offset int) ([]*model.Account, error)
	// Count возвращает количество учётных записей по фильтру.
	Count(ctx context.Context, filter model.AccountFilter) (int, error)
	// Update сохраняет изменяемые поля учётной записи.
	// session_version не затрагивается: он меняется только через IncrementSessionVersion.
	Update(ctx context.Context, a *model.Account) error
	// IncrementSessionVersion атомарно увеличивает session_version и возвращает новое значение.
	IncrementSessionVersion(ctx context.Context, id string) (int, error)
	// Delete удаляет учётную запись (связанные записи — по правилам внешних ключей).
	Delete(ctx context.Context, id string) error
}

// accountRepo — реализация AccountRepository.
type accountRepo struct {
	db DBTX
}

// NewAccountRepository создаёт репозиторий учётных записей.
func NewAccountRepository(db DBTX) AccountRepository {
	return &accountRepo{db: db}
}

const accountColumns = `id, email, name, password_hash, role, session_version,
	email_verified_at, banned, ban_reason, banned_at, frozen, profile_verified,
	created_at, updated_at`

// scanAccount сканирует строку результата в модель Account.
func scanAccount(row pgx.Row) (*model.Account, error) {
	a := &model.Account{}
	err := row.Scan(
		&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Role, &a.SessionVersion,
		&a.EmailVerifiedAt, &a.Banned, &a.BanReason, &a.BannedAt, &a.Frozen, &a.ProfileVerified,
		&a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

func (r *accountRepo) Create(ctx context.Context, a *model.Account) error {
	query := `
		INSERT INTO accounts (id, email, name, password_hash, role,
			email_verified_at, banned, ban_reason, banned_at, frozen, profile_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING session_version, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		a.ID, a.Email, a.Name, a.PasswordHash, a.Role,
		a.EmailVerifiedAt, a.Banned, a.BanReason, a.BannedAt, a.Frozen, a.ProfileVerified,
	).Scan(&a.SessionVersion, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: учётная запись с email %s уже существует", ErrConflict, a.Email)
		}
		return fmt.Errorf("ошибка создания учётной записи: %w", err)
	}
	return nil
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (*model.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, accountColumns)
	return r.getOne(ctx, query, id)
}

func (r *accountRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1 FOR UPDATE`, accountColumns)
	return r.getOne(ctx, query, id)
}

func (r *accountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE LOWER(email) = LOWER($1)`, accountColumns)
	return r.getOne(ctx, query, email)
}

func (r *accountRepo) getOne(ctx context.Context, query string, arg any) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения учётной записи: %w", err)
	}
	return a, nil
}

// accountConditions строит условия WHERE по фильтру.
func accountConditions(filter model.AccountFilter) ([]string, []any) {
	var conditions []string
	var args []any

	if filter.Role != nil {
		args = append(args, *filter.Role)
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Banned != nil {
		args = append(args, *filter.Banned)
		conditions = append(conditions, fmt.Sprintf("banned = $%d", len(args)))
	}
	if filter.Search != nil && *filter.Search != "" {
		args = append(args, "%"+*filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(email ILIKE $%d OR name ILIKE $%d)", len(args), len(args)))
	}
	return conditions, args
}

func (r *accountRepo) List(ctx context.Context, filter model.AccountFilter, limit, offset int) ([]*model.Account, error) {
	conditions, args := accountConditions(filter)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM accounts
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, accountColumns, buildWhere(conditions), argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка учётных записей: %w", err)
	}
	defer rows.Close()

	var result []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования учётной записи: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *accountRepo) Count(ctx context.Context, filter model.AccountFilter) (int, error) {
	conditions, args := accountConditions(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM accounts %s`, buildWhere(conditions))

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта учётных записей: %w", err)
	}
	return count, nil
}

func (r *accountRepo) Update(ctx context.Context, a *model.Account) error {
	query := `
		UPDATE accounts
		SET email = $2, name = $3, password_hash = $4, role = $5,
			email_verified_at = $6, banned = $7, ban_reason = $8, banned_at = $9,
			frozen = $10, profile_verified = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		a.ID, a.Email, a.Name, a.PasswordHash, a.Role,
		a.EmailVerifiedAt, a.Banned, a.BanReason, a.BannedAt,
		a.Frozen, a.ProfileVerified,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: учётная запись с email %s уже существует", ErrConflict, a.Email)
		}
		return fmt.Errorf("ошибка обновления учётной записи: %w", err)
	}
	return nil
}

func (r *accountRepo) IncrementSessionVersion(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE accounts
		SET session_version = session_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING session_version`

	var version int
	if err := r.db.QueryRow(ctx, query, id).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка инвалидации сессий: %w", err)
	}
	return version, nil
}

func (r *accountRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления учётной записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
