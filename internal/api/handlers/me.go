// me.go — обработчики /api/v1/me endpoints: собственный профиль,
// смена пароля и доступы вызывающего.
package handlers

import (
	"net/http"

	apierrors "github.com/adhikarisumit/lms-module/internal/api/errors"
	"github.com/adhikarisumit/lms-module/internal/api/middleware"
	"github.com/adhikarisumit/lms-module/internal/domain/model"
	"github.com/adhikarisumit/lms-module/internal/session"
)

// GetMe — GET /api/v1/me.
func (h *APIHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}

	acc, err := h.accounts.Get(r.Context(), identity.AccountID)
	if err != nil {
		h.writeError(w, r, err, "Ошибка получения профиля")
		return
	}
	writeJSON(w, http.StatusOK, h.mapAccount(acc))
}

// UpdateMe — PATCH /api/v1/me.
// Смена имени или email отзывает все сессии; вызывающему сразу выдаётся новый токен.
func (h *APIHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}

	var req profileUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.accounts.UpdateProfile(r.Context(), identity.AccountID, req.toService())
	if err != nil {
		h.writeError(w, r, err, "Ошибка обновления профиля")
		return
	}

	resp := profileResponse{Account: h.mapAccount(acc)}
	if acc.SessionVersion != identity.SessionVersion {
		sess, ok := h.reissue(w, r, acc)
		if !ok {
			return
		}
		resp.Session = sess
	}
	writeJSON(w, http.StatusOK, resp)
}

// ChangePassword — POST /api/v1/me/password.
// Отзывает все сессии и возвращает новый токен для текущего клиента.
func (h *APIHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.accounts.ChangePassword(r.Context(), identity.AccountID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.writeError(w, r, err, "Ошибка смены пароля")
		return
	}

	sess, ok := h.reissue(w, r, acc)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// GetMyGrants — GET /api/v1/me/grants.
func (h *APIHandler) GetMyGrants(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}

	grants, err := h.catalog.ListGrants(r.Context(), identity.AccountID)
	if err != nil {
		h.writeError(w, r, err, "Ошибка получения доступов")
		return
	}
	writeJSON(w, http.StatusOK, mapGrants(grants))
}

// identity возвращает Identity из контекста или пишет 401.
func (h *APIHandler) identity(w http.ResponseWriter, r *http.Request) *session.Identity {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
	}
	return identity
}

func (h *APIHandler) reissue(w http.ResponseWriter, r *http.Request, acc *model.Account) (*sessionResponse, bool) {
	cred, err := h.sessions.Issue(acc)
	if err != nil {
		h.writeError(w, r, err, "Ошибка выдачи токена")
		return nil, false
	}
	sess := mapSession(cred)
	return &sess, true
}
