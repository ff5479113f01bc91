package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
)

// CatalogRepository — интерфейс доступа к таблицам courses и resources.
type CatalogRepository interface {
	// CreateCourse создаёт курс. Дубликат slug — ErrConflict.
	CreateCourse(ctx context.Context, c *model.Course) error
	// GetCourse возвращает курс по UUID.
	GetCourse(ctx context.Context, id string) (*model.Course, error)
	// ListCourses возвращает курсы; publishedOnly скрывает неопубликованные.
	ListCourses(ctx context.Context, publishedOnly bool, limit, offset int) ([]*model.Course, error)
	// CountCourses возвращает количество курсов.
	CountCourses(ctx context.Context, publishedOnly bool) (int, error)
	// CreateResource создаёт ресурс. Дубликат slug — ErrConflict.
	CreateResource(ctx context.Context, r *model.Resource) error
	// GetResource возвращает ресурс по UUID.
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	// ListResources возвращает ресурсы; publishedOnly скрывает неопубликованные.
	ListResources(ctx context.Context, publishedOnly bool, limit, offset int) ([]*model.Resource, error)
	// CountResources возвращает количество ресурсов.
	CountResources(ctx context.Context, publishedOnly bool) (int, error)
	// SetPublished публикует или снимает с публикации курс либо ресурс.
	SetPublished(ctx context.Context, itemType, id string, published bool) error
}

// catalogRepo — реализация CatalogRepository.
type catalogRepo struct {
	db DBTX
}

// NewCatalogRepository создаёт репозиторий каталога.
func NewCatalogRepository(db DBTX) CatalogRepository {
	return &catalogRepo{db: db}
}

const courseColumns = `id, slug, title, price, currency, access_duration_months,
	published, created_at, updated_at`

const resourceColumns = `id, slug, title, price, currency, published, created_at, updated_at`

func scanCourse(row pgx.Row) (*model.Course, error) {
	c := &model.Course{}
	err := row.Scan(
		&c.ID, &c.Slug, &c.Title, &c.Price, &c.Currency, &c.AccessDurationMonths,
		&c.Published, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func scanResource(row pgx.Row) (*model.Resource, error) {
	res := &model.Resource{}
	err := row.Scan(
		&res.ID, &res.Slug, &res.Title, &res.Price, &res.Currency,
		&res.Published, &res.CreatedAt, &res.UpdatedAt,
	)
	return res, err
}

// publishedWhere возвращает условие фильтра публикации.
func publishedWhere(publishedOnly bool) string {
	if publishedOnly {
		return "WHERE published = TRUE"
	}
	return ""
}

func (r *catalogRepo) CreateCourse(ctx context.Context, c *model.Course) error {
	query := `
		INSERT INTO courses (id, slug, title, price, currency, access_duration_months, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		c.ID, c.Slug, c.Title, c.Price, c.Currency, c.AccessDurationMonths, c.Published,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: курс со slug %s уже существует", ErrConflict, c.Slug)
		}
		return fmt.Errorf("ошибка создания курса: %w", err)
	}
	return nil
}

func (r *catalogRepo) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1`, courseColumns)
	c, err := scanCourse(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения курса: %w", err)
	}
	return c, nil
}

func (r *catalogRepo) ListCourses(ctx context.Context, publishedOnly bool, limit, offset int) ([]*model.Course, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM courses
		%s
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, courseColumns, publishedWhere(publishedOnly))

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка курсов: %w", err)
	}
	defer rows.Close()

	var result []*model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования курса: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *catalogRepo) CountCourses(ctx context.Context, publishedOnly bool) (int, error) {
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM courses %s`, publishedWhere(publishedOnly))
	if err := r.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта курсов: %w", err)
	}
	return count, nil
}

func (r *catalogRepo) CreateResource(ctx context.Context, res *model.Resource) error {
	query := `
		INSERT INTO resources (id, slug, title, price, currency, published)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		res.ID, res.Slug, res.Title, res.Price, res.Currency, res.Published,
	).Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ресурс со slug %s уже существует", ErrConflict, res.Slug)
		}
		return fmt.Errorf("ошибка создания ресурса: %w", err)
	}
	return nil
}

func (r *catalogRepo) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	query := fmt.Sprintf(`SELECT %s FROM resources WHERE id = $1`, resourceColumns)
	res, err := scanResource(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения ресурса: %w", err)
	}
	return res, nil
}

func (r *catalogRepo) ListResources(ctx context.Context, publishedOnly bool, limit, offset int) ([]*model.Resource, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM resources
		%s
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, resourceColumns, publishedWhere(publishedOnly))

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка ресурсов: %w", err)
	}
	defer rows.Close()

	var result []*model.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования ресурса: %w", err)
		}
		result = append(result, res)
	}
	return result, rows.Err()
}

func (r *catalogRepo) CountResources(ctx context.Context, publishedOnly bool) (int, error) {
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM resources %s`, publishedWhere(publishedOnly))
	if err := r.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта ресурсов: %w", err)
	}
	return count, nil
}

func (r *catalogRepo) SetPublished(ctx context.Context, itemType, id string, published bool) error {
	var table string
	switch itemType {
	case model.ItemTypeCourse:
		table = "courses"
	case model.ItemTypeResource:
		table = "resources"
	default:
		return fmt.Errorf("неизвестный тип позиции каталога: %q", itemType)
	}

	query := fmt.Sprintf(`UPDATE %s SET published = $2, updated_at = NOW() WHERE id = $1`, table)
	tag, err := r.db.Exec(ctx, query, id, published)
	if err != nil {
		return fmt.Errorf("ошибка изменения публикации: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
