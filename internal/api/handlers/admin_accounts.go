// admin_accounts.go — обработчики /api/v1/admin/accounts endpoints.
// Модерация учётных записей: список, бан, заморозка, смена роли,
// принудительный отзыв сессий, удаление. Права проверяет сервисный слой.
package handlers

import (
	"net/http"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/adhikarisumit/lms-module/internal/api/errors"
	"github.com/adhikarisumit/lms-module/internal/domain/model"
	"github.com/adhikarisumit/lms-module/internal/session"
)

// ListAccounts — GET /api/v1/admin/accounts.
func (h *APIHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}

	var filter model.AccountFilter
	if filter.Role, ok = optionalQuery(w, r, "role"); !ok {
		return
	}
	if filter.Search, ok = optionalQuery(w, r, "search"); !ok {
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "banned", r.URL.Query(), &filter.Banned); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр banned: "+err.Error())
		return
	}

	accounts, total, err := h.accounts.ListAccounts(r.Context(), identity, filter, limit, offset)
	if err != nil {
		h.writeError(w, r, err, "Ошибка получения учётных записей")
		return
	}
	writeJSON(w, http.StatusOK, newList(accounts, total, limit, offset, h.mapAccount))
}

// ProvisionAdmin — POST /api/v1/admin/accounts.
// Создаёт администратора с подтверждённым email. Только super-admin.
func (h *APIHandler) ProvisionAdmin(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}

	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.accounts.ProvisionAdmin(r.Context(), identity, req.Name, string(req.Email), req.Password)
	if err != nil {
		h.writeError(w, r, err, "Ошибка создания администратора")
		return
	}
	writeJSON(w, http.StatusCreated, h.mapAccount(acc))
}

// GetAccount — GET /api/v1/admin/accounts/{id}.
func (h *APIHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	if h.identity(w, r) == nil {
		return
	}
	id, ok := pathID(w, r, "Учётная запись")
	if !ok {
		return
	}

	acc, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, "Ошибка получения учётной записи")
		return
	}
	writeJSON(w, http.StatusOK, h.mapAccount(acc))
}

// UpdateAccount — PATCH /api/v1/admin/accounts/{id}.
func (h *APIHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req profileUpdateRequest
	h.adminAction(w, r, &req, "Ошибка обновления учётной записи",
		func(actor *session.Identity, id string) (*model.Account, error) {
			return h.accounts.AdminUpdateProfile(r.Context(), actor, id, req.toService())
		})
}

// BanAccount — POST /api/v1/admin/accounts/{id}/ban.
// Тело с причиной необязательно.
func (h *APIHandler) BanAccount(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	var body any
	if r.ContentLength != 0 {
		body = &req
	}
	h.adminAction(w, r, body, "Ошибка блокировки учётной записи",
		func(actor *session.Identity, id string) (*model.Account, error) {
			return h.accounts.Ban(r.Context(), actor, id, req.Reason)
		})
}

// UnbanAccount — POST /api/v1/admin/accounts/{id}/unban.
func (h *APIHandler) UnbanAccount(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, nil, "Ошибка разблокировки учётной записи",
		func(actor *session.Identity, id string) (*model.Account, error) {
			return h.accounts.Unban(r.Context(), actor, id)
		})
}

// FreezeAccount — POST /api/v1/admin/accounts/{id}/freeze.
func (h *APIHandler) FreezeAccount(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, nil, "Ошибка заморозки учётной записи",
		func(actor *session.Identity, id string) (*model.Account, error) {
			return h.accounts.Freeze(r.Context(), actor, id)
		})
}

// UnfreezeAccount — POST /api/v1/admin/accounts/{id}/unfreeze.
func (h *APIHandler) UnfreezeAccount(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, nil, "Ошибка разморозки учётной записи",
		func(actor *session.Identity, id string) (*model.Account, error) {
			return h.accounts.Unfreeze(r.Context(), actor, id)
		})
}

// SetAccountRole — POST /api/v1/admin/accounts/{id}/role.
func (h *APIHandler) SetAccountRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	h.adminAction(w, r, &req, "Ошибка смены роли",
		func(actor *session.Identity, id string) (*model.Account, error) {
			return h.accounts.SetRole(r.Context(), actor, id, req.Role)
		})
}

// SetProfileVerification — POST /api/v1/admin/accounts/{id}/profile-verification.
func (h *APIHandler) SetProfileVerification(w http.ResponseWriter, r *http.Request) {
	var req verifiedRequest
	h.adminAction(w, r, &req, "Ошибка изменения верификации профиля",
		func(actor *session.Identity, id string) (*model.Account, error) {
			return h.accounts.SetProfileVerified(r.Context(), actor, id, req.Verified)
		})
}

// InvalidateAccountSessions — POST /api/v1/admin/accounts/{id}/invalidate-sessions.
func (h *APIHandler) InvalidateAccountSessions(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, nil, "Ошибка отзыва сессий",
		func(actor *session.Identity, id string) (*model.Account, error) {
			return h.accounts.InvalidateSessions(r.Context(), actor, id)
		})
}

// DeleteAccount — DELETE /api/v1/admin/accounts/{id}.
func (h *APIHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}
	id, ok := pathID(w, r, "Учётная запись")
	if !ok {
		return
	}

	if err := h.accounts.Delete(r.Context(), identity, id); err != nil {
		h.writeError(w, r, err, "Ошибка удаления учётной записи")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// adminAction — общий каркас действий над учётной записью {id}:
// Identity из контекста, UUID из пути, необязательное тело, ответ — учётная запись.
func (h *APIHandler) adminAction(
	w http.ResponseWriter,
	r *http.Request,
	body any,
	op string,
	fn func(actor *session.Identity, id string) (*model.Account, error),
) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}
	id, ok := pathID(w, r, "Учётная запись")
	if !ok {
		return
	}
	if body != nil && !decodeJSON(w, r, body) {
		return
	}

	acc, err := fn(identity, id)
	if err != nil {
		h.writeError(w, r, err, op)
		return
	}
	writeJSON(w, http.StatusOK, h.mapAccount(acc))
}
