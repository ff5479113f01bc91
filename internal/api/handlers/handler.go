// handler.go — основной обработчик API LMS Module.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой
// и сессионный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/adhikarisumit/lms-module/internal/api/errors"
	"github.com/adhikarisumit/lms-module/internal/domain/model"
	"github.com/adhikarisumit/lms-module/internal/domain/rbac"
	"github.com/adhikarisumit/lms-module/internal/service"
	"github.com/adhikarisumit/lms-module/internal/session"
)

// Sessions — выдача сессионных токенов. Реализуется session.Authority.
type Sessions interface {
	Authenticate(ctx context.Context, email, password, remoteIP string) (*session.Credential, error)
	Issue(acc *model.Account) (*session.Credential, error)
	Refresh(ctx context.Context, token string) (*session.Credential, error)
	JWKS(ctx context.Context) (json.RawMessage, error)
	TierOf(acc *model.Account) rbac.Tier
}

// Accounts — операции над учётными записями. Реализуется service.AccountService.
type Accounts interface {
	Register(ctx context.Context, name, email, pass string) (*model.Account, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, accountID, current, next string) (*model.Account, error)
	UpdateProfile(ctx context.Context, accountID string, upd service.ProfileUpdate) (*model.Account, error)
	SignOutEverywhere(ctx context.Context, accountID string) (int, error)
	Get(ctx context.Context, id string) (*model.Account, error)

	ListAccounts(ctx context.Context, actor *session.Identity, filter model.AccountFilter, limit, offset int) ([]*model.Account, int, error)
	Ban(ctx context.Context, actor *session.Identity, id, reason string) (*model.Account, error)
	Unban(ctx context.Context, actor *session.Identity, id string) (*model.Account, error)
	Freeze(ctx context.Context, actor *session.Identity, id string) (*model.Account, error)
	Unfreeze(ctx context.Context, actor *session.Identity, id string) (*model.Account, error)
	AdminUpdateProfile(ctx context.Context, actor *session.Identity, id string, upd service.ProfileUpdate) (*model.Account, error)
	SetRole(ctx context.Context, actor *session.Identity, id, role string) (*model.Account, error)
	SetProfileVerified(ctx context.Context, actor *session.Identity, id string, verified bool) (*model.Account, error)
	InvalidateSessions(ctx context.Context, actor *session.Identity, id string) (*model.Account, error)
	Delete(ctx context.Context, actor *session.Identity, id string) error
	ProvisionAdmin(ctx context.Context, actor *session.Identity, name, email, pass string) (*model.Account, error)
}

// Purchases — заявки на покупку. Реализуется service.PurchaseService.
type Purchases interface {
	Create(ctx context.Context, requesterID, itemType, itemID string, message *string) (*model.PurchaseRequest, error)
	Review(ctx context.Context, reviewer *session.Identity, requestID, action string, note *string) (*model.ReviewOutcome, error)
	Cancel(ctx context.Context, requesterID, requestID string) error
	Delete(ctx context.Context, actor *session.Identity, requestID string) error
	Get(ctx context.Context, actor *session.Identity, requestID string) (*model.PurchaseRequest, error)
	ListMine(ctx context.Context, requesterID string, limit, offset int) ([]*model.PurchaseRequest, int, error)
	List(ctx context.Context, actor *session.Identity, filter model.PurchaseRequestFilter, limit, offset int) ([]*model.PurchaseRequest, int, error)
}

// Catalog — каталог курсов и ресурсов. Реализуется service.CatalogService.
type Catalog interface {
	CreateCourse(ctx context.Context, actor *session.Identity, in service.CourseInput) (*model.Course, error)
	CreateResource(ctx context.Context, actor *session.Identity, in service.ResourceInput) (*model.Resource, error)
	SetPublished(ctx context.Context, actor *session.Identity, itemType, id string, published bool) error
	ListCourses(ctx context.Context, includeUnpublished bool, limit, offset int) ([]*model.Course, int, error)
	ListResources(ctx context.Context, includeUnpublished bool, limit, offset int) ([]*model.Resource, int, error)
	GetCourse(ctx context.Context, id string, includeUnpublished bool) (*model.Course, error)
	GetResource(ctx context.Context, id string, includeUnpublished bool) (*model.Resource, error)
	ListGrants(ctx context.Context, userID string) (*service.Grants, error)
}

// Payments — журнал платежей. Реализуется service.PaymentService.
type Payments interface {
	List(ctx context.Context, actor *session.Identity, filter model.PaymentFilter, limit, offset int) ([]*model.Payment, int, error)
	Summary(ctx context.Context, actor *session.Identity) ([]model.PaymentTotal, error)
}

// APIHandler — основной обработчик API LMS Module.
type APIHandler struct {
	health    *HealthHandler
	sessions  Sessions
	accounts  Accounts
	purchases Purchases
	catalog   Catalog
	payments  Payments
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	sessions Sessions,
	accounts Accounts,
	purchases Purchases,
	catalog Catalog,
	payments Payments,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:    health,
		sessions:  sessions,
		accounts:  accounts,
		purchases: purchases,
		catalog:   catalog,
		payments:  payments,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON декодирует тело запроса. При ошибке пишет 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	return true
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit *int, offset *int) (int, int) {
	l := 100
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > 1000 {
			l = 1000
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}

// pagination читает limit и offset из query. При ошибке пишет 400.
func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	var l, o *int
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &l); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр limit: "+err.Error())
		return 0, 0, false
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", query, &o); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр offset: "+err.Error())
		return 0, 0, false
	}
	limit, offset = paginationDefaults(l, o)
	return limit, offset, true
}

// optionalQuery читает необязательный строковый параметр query.
func optionalQuery(w http.ResponseWriter, r *http.Request, name string) (*string, bool) {
	var v *string
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &v); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр "+name+": "+err.Error())
		return nil, false
	}
	return v, true
}

// pathID извлекает UUID из параметра пути {id}.
// Значение, не являющееся UUID, не может принадлежать ни одной сущности: 404.
func pathID(w http.ResponseWriter, r *http.Request, what string) (string, bool) {
	var raw string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &raw,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		apierrors.NotFound(w, what+" не найден(а)")
		return "", false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		apierrors.NotFound(w, what+" не найден(а)")
		return "", false
	}
	return id.String(), true
}

// listResponse — страница списка.
type listResponse[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

func newList[T, M any](models []M, total, limit, offset int, mapFn func(M) T) listResponse[T] {
	items := make([]T, len(models))
	for i, m := range models {
		items[i] = mapFn(m)
	}
	return listResponse[T]{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

// writeError переводит ошибки сервисного и сессионного слоёв в ответ API.
// Неизвестные ошибки логируются и отдаются как 500 с сообщением op.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrWrongPassword):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrItemNotFound):
		apierrors.ItemNotFound(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrAlreadyGranted):
		apierrors.AlreadyGranted(w, err.Error())
	case errors.Is(err, service.ErrAlreadyReviewed):
		apierrors.AlreadyReviewed(w, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		apierrors.InvalidState(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrNotificationUnavailable):
		apierrors.ServiceUnavailable(w, err.Error())

	case errors.Is(err, session.ErrInvalidCredentials):
		apierrors.InvalidCredentials(w, err.Error())
	case errors.Is(err, session.ErrEmailNotVerified):
		apierrors.EmailNotVerified(w, err.Error())
	case errors.Is(err, session.ErrBanned):
		apierrors.AccountBanned(w, err.Error())
	case errors.Is(err, session.ErrTooManyAttempts):
		apierrors.TooManyAttempts(w, err.Error())
	case errors.Is(err, session.ErrExpired),
		errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrInvalidated):
		apierrors.Unauthorized(w, err.Error())

	default:
		h.logger.Error(op,
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, op)
	}
}
