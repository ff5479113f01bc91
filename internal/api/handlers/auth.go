// auth.go — обработчики /api/v1/auth endpoints.
// Регистрация, вход, подтверждение email, сброс пароля, обновление
// и отзыв сессий.
package handlers

import (
	"net"
	"net/http"

	apierrors "github.com/adhikarisumit/lms-module/internal/api/errors"
	"github.com/adhikarisumit/lms-module/internal/api/middleware"
)

// Register — POST /api/v1/auth/register.
// Создаёт учётную запись студента и отправляет письмо подтверждения.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.accounts.Register(r.Context(), req.Name, string(req.Email), req.Password)
	if err != nil {
		h.writeError(w, r, err, "Ошибка регистрации")
		return
	}

	writeJSON(w, http.StatusCreated, h.mapAccount(acc))
}

// Login — POST /api/v1/auth/login.
// Проверяет учётные данные и выдаёт сессионный токен.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cred, err := h.sessions.Authenticate(r.Context(), req.Email, req.Password, remoteIP(r))
	if err != nil {
		h.writeError(w, r, err, "Ошибка входа")
		return
	}

	writeJSON(w, http.StatusOK, mapSession(cred))
}

// VerifyEmail — POST /api/v1/auth/verify-email.
func (h *APIHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.accounts.VerifyEmail(r.Context(), req.Token); err != nil {
		h.writeError(w, r, err, "Ошибка подтверждения email")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResendVerification — POST /api/v1/auth/resend-verification.
// Ответ не зависит от того, зарегистрирован ли адрес.
func (h *APIHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.accounts.ResendVerification(r.Context(), string(req.Email)); err != nil {
		h.writeError(w, r, err, "Ошибка повторной отправки письма")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ForgotPassword — POST /api/v1/auth/forgot-password.
// Ответ не зависит от того, зарегистрирован ли адрес.
func (h *APIHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.accounts.RequestPasswordReset(r.Context(), string(req.Email)); err != nil {
		h.writeError(w, r, err, "Ошибка запроса сброса пароля")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ResetPassword — POST /api/v1/auth/reset-password.
// Устанавливает новый пароль по одноразовому токену и отзывает все сессии.
func (h *APIHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.writeError(w, r, err, "Ошибка сброса пароля")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshSession — POST /api/v1/auth/refresh.
// Проверяет текущий токен и выдаёт новый с актуальными данными.
func (h *APIHandler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.BearerToken(r)
	if err != nil {
		apierrors.Unauthorized(w, err.Error())
		return
	}

	cred, err := h.sessions.Refresh(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err, "Ошибка обновления сессии")
		return
	}

	writeJSON(w, http.StatusOK, mapSession(cred))
}

// LogoutAll — POST /api/v1/auth/logout-all.
// Отзывает все сессии вызывающего, включая текущую.
func (h *APIHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	if _, err := h.accounts.SignOutEverywhere(r.Context(), identity.AccountID); err != nil {
		h.writeError(w, r, err, "Ошибка отзыва сессий")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// remoteIP возвращает адрес клиента без порта.
// RemoteAddr уже нормализован chi middleware.RealIP.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
