// catalog.go — каталог курсов и ресурсов, LRU-кэш позиций каталога.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
	"github.com/adhikarisumit/lms-module/internal/domain/rbac"
	"github.com/adhikarisumit/lms-module/internal/repository"
	"github.com/adhikarisumit/lms-module/internal/session"
)

// Prometheus-метрики кэша каталога.
var (
	catalogCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lms_catalog_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш каталога.",
	})
	catalogCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lms_catalog_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша каталога.",
	})
)

// CatalogCache — LRU-кэш позиций каталога с TTL.
// Хранит только метаданные курсов и ресурсов; данные сессий сюда не попадают.
type CatalogCache struct {
	cache *expirable.LRU[string, *model.CatalogItem]
}

// NewCatalogCache создаёт кэш на maxSize записей с временем жизни ttl.
func NewCatalogCache(maxSize int, ttl time.Duration) *CatalogCache {
	return &CatalogCache{cache: expirable.NewLRU[string, *model.CatalogItem](maxSize, nil, ttl)}
}

func catalogKey(itemType, id string) string {
	return itemType + ":" + id
}

// Get возвращает позицию из кэша.
func (c *CatalogCache) Get(itemType, id string) (*model.CatalogItem, bool) {
	item, ok := c.cache.Get(catalogKey(itemType, id))
	if ok {
		catalogCacheHitsTotal.Inc()
		return item, true
	}
	catalogCacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет позицию в кэш.
func (c *CatalogCache) Set(item *model.CatalogItem) {
	c.cache.Add(catalogKey(item.Type, item.ID), item)
}

// Delete удаляет позицию из кэша.
func (c *CatalogCache) Delete(itemType, id string) {
	c.cache.Remove(catalogKey(itemType, id))
}

// Len возвращает число записей в кэше.
func (c *CatalogCache) Len() int {
	return c.cache.Len()
}

var (
	slugPattern     = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// CourseInput — параметры создания курса.
type CourseInput struct {
	Slug                 string
	Title                string
	Price                int64
	Currency             string
	AccessDurationMonths *int
	Published            bool
}

// ResourceInput — параметры создания ресурса.
type ResourceInput struct {
	Slug      string
	Title     string
	Price     int64
	Currency  string
	Published bool
}

// Grants — доступы пользователя.
type Grants struct {
	Enrollments       []*model.Enrollment
	ResourcePurchases []*model.ResourcePurchase
}

// CatalogService — управление каталогом и поиск позиций для заявок на покупку.
type CatalogService struct {
	repos           *repository.Repositories
	cache           *CatalogCache
	defaultCurrency string
	logger          *slog.Logger
}

// NewCatalogService создаёт сервис каталога.
func NewCatalogService(
	repos *repository.Repositories,
	cache *CatalogCache,
	defaultCurrency string,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		repos:           repos,
		cache:           cache,
		defaultCurrency: defaultCurrency,
		logger:          logger.With(slog.String("component", "catalog_service")),
	}
}

// Item возвращает опубликованную позицию каталога.
// Несуществующая и неопубликованная позиции дают ErrItemNotFound.
func (s *CatalogService) Item(ctx context.Context, itemType, id string) (*model.CatalogItem, error) {
	if !model.IsValidItemType(itemType) {
		return nil, fmt.Errorf("%w: неизвестный тип позиции %q", ErrValidation, itemType)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrItemNotFound
	}

	item, ok := s.cache.Get(itemType, id)
	if !ok {
		var err error
		item, err = s.load(ctx, itemType, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrItemNotFound
			}
			return nil, err
		}
		s.cache.Set(item)
	}

	if !item.Published {
		return nil, ErrItemNotFound
	}
	return item, nil
}

func (s *CatalogService) load(ctx context.Context, itemType, id string) (*model.CatalogItem, error) {
	if itemType == model.ItemTypeCourse {
		c, err := s.repos.Catalog.GetCourse(ctx, id)
		if err != nil {
			return nil, err
		}
		return c.Item(), nil
	}
	r, err := s.repos.Catalog.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Item(), nil
}

// GetCourse возвращает курс по id. Неопубликованный курс виден только
// при includeUnpublished, иначе ErrNotFound.
func (s *CatalogService) GetCourse(ctx context.Context, id string, includeUnpublished bool) (*model.Course, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	c, err := s.repos.Catalog.GetCourse(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !c.Published && !includeUnpublished {
		return nil, ErrNotFound
	}
	return c, nil
}

// GetResource возвращает ресурс по id; видимость как у GetCourse.
func (s *CatalogService) GetResource(ctx context.Context, id string, includeUnpublished bool) (*model.Resource, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	r, err := s.repos.Catalog.GetResource(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !r.Published && !includeUnpublished {
		return nil, ErrNotFound
	}
	return r, nil
}

// CreateCourse создаёт курс.
func (s *CatalogService) CreateCourse(ctx context.Context, actor *session.Identity, in CourseInput) (*model.Course, error) {
	if !rbac.Can(actor.Tier, rbac.OpManageCatalog, rbac.TierNone) {
		return nil, ErrForbidden
	}

	currency, err := s.validateItem(in.Slug, in.Title, in.Price, in.Currency)
	if err != nil {
		return nil, err
	}
	if in.AccessDurationMonths != nil && *in.AccessDurationMonths < 1 {
		return nil, fmt.Errorf("%w: срок доступа должен быть не меньше 1 месяца", ErrValidation)
	}

	c := &model.Course{
		ID:                   uuid.New().String(),
		Slug:                 in.Slug,
		Title:                strings.TrimSpace(in.Title),
		Price:                in.Price,
		Currency:             currency,
		AccessDurationMonths: in.AccessDurationMonths,
		Published:            in.Published,
	}
	if err := s.repos.Catalog.CreateCourse(ctx, c); err != nil {
		return nil, mapRepoErr(err)
	}

	s.logger.Info("Курс создан",
		slog.String("course_id", c.ID),
		slog.String("slug", c.Slug),
		slog.String("actor_id", actor.AccountID),
	)
	return c, nil
}

// CreateResource создаёт ресурс.
func (s *CatalogService) CreateResource(ctx context.Context, actor *session.Identity, in ResourceInput) (*model.Resource, error) {
	if !rbac.Can(actor.Tier, rbac.OpManageCatalog, rbac.TierNone) {
		return nil, ErrForbidden
	}

	currency, err := s.validateItem(in.Slug, in.Title, in.Price, in.Currency)
	if err != nil {
		return nil, err
	}

	r := &model.Resource{
		ID:        uuid.New().String(),
		Slug:      in.Slug,
		Title:     strings.TrimSpace(in.Title),
		Price:     in.Price,
		Currency:  currency,
		Published: in.Published,
	}
	if err := s.repos.Catalog.CreateResource(ctx, r); err != nil {
		return nil, mapRepoErr(err)
	}

	s.logger.Info("Ресурс создан",
		slog.String("resource_id", r.ID),
		slog.String("slug", r.Slug),
		slog.String("actor_id", actor.AccountID),
	)
	return r, nil
}

// SetPublished публикует или снимает с публикации позицию и сбрасывает её в кэше.
func (s *CatalogService) SetPublished(ctx context.Context, actor *session.Identity, itemType, id string, published bool) error {
	if !rbac.Can(actor.Tier, rbac.OpManageCatalog, rbac.TierNone) {
		return ErrForbidden
	}
	if !model.IsValidItemType(itemType) {
		return fmt.Errorf("%w: неизвестный тип позиции %q", ErrValidation, itemType)
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	if err := s.repos.Catalog.SetPublished(ctx, itemType, id, published); err != nil {
		return mapRepoErr(err)
	}
	s.cache.Delete(itemType, id)

	s.logger.Info("Публикация позиции изменена",
		slog.String("item_type", itemType),
		slog.String("item_id", id),
		slog.Bool("published", published),
		slog.String("actor_id", actor.AccountID),
	)
	return nil
}

// validateItem проверяет общие поля позиции и возвращает нормализованную валюту.
func (s *CatalogService) validateItem(slug, title string, price int64, currency string) (string, error) {
	if !slugPattern.MatchString(slug) {
		return "", fmt.Errorf("%w: slug должен состоять из строчных латинских букв, цифр и дефисов", ErrValidation)
	}
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("%w: название не может быть пустым", ErrValidation)
	}
	if price < 0 {
		return "", fmt.Errorf("%w: цена не может быть отрицательной", ErrValidation)
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	if !currencyPattern.MatchString(currency) {
		return "", fmt.Errorf("%w: валюта должна быть кодом ISO 4217", ErrValidation)
	}
	return currency, nil
}

// ListCourses возвращает курсы; неопубликованные видны только администраторам.
func (s *CatalogService) ListCourses(ctx context.Context, includeUnpublished bool, limit, offset int) ([]*model.Course, int, error) {
	courses, err := s.repos.Catalog.ListCourses(ctx, !includeUnpublished, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repos.Catalog.CountCourses(ctx, !includeUnpublished)
	if err != nil {
		return nil, 0, err
	}
	return courses, total, nil
}

// ListResources возвращает ресурсы; неопубликованные видны только администраторам.
func (s *CatalogService) ListResources(ctx context.Context, includeUnpublished bool, limit, offset int) ([]*model.Resource, int, error) {
	resources, err := s.repos.Catalog.ListResources(ctx, !includeUnpublished, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repos.Catalog.CountResources(ctx, !includeUnpublished)
	if err != nil {
		return nil, 0, err
	}
	return resources, total, nil
}

// ListGrants возвращает зачисления и покупки ресурсов пользователя.
func (s *CatalogService) ListGrants(ctx context.Context, userID string) (*Grants, error) {
	enrollments, err := s.repos.Grants.ListEnrollments(ctx, userID)
	if err != nil {
		return nil, err
	}
	purchases, err := s.repos.Grants.ListResourcePurchases(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Grants{Enrollments: enrollments, ResourcePurchases: purchases}, nil
}
