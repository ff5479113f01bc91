// Пакет errors — ответы с ошибками в едином формате LMS Module:
// {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	CodeAccountBanned      = "ACCOUNT_BANNED"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	CodeItemNotFound       = "ITEM_NOT_FOUND"
	CodeAlreadyGranted     = "ALREADY_GRANTED"
	CodeAlreadyReviewed    = "ALREADY_REVIEWED"
	CodeInvalidState       = "INVALID_STATE"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Conflict — 409 конфликт (дублирующийся ресурс).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// InvalidCredentials — 401 неверный email или пароль.
func InvalidCredentials(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeInvalidCredentials, message)
}

// EmailNotVerified — 403 email не подтверждён.
func EmailNotVerified(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeEmailNotVerified, message)
}

// AccountBanned — 403 учётная запись заблокирована.
func AccountBanned(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeAccountBanned, message)
}

// TooManyAttempts — 429 превышен лимит попыток входа.
func TooManyAttempts(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeTooManyAttempts, message)
}

// ItemNotFound — 404 позиция каталога не найдена или не опубликована.
func ItemNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeItemNotFound, message)
}

// AlreadyGranted — 409 доступ к позиции уже выдан.
func AlreadyGranted(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeAlreadyGranted, message)
}

// AlreadyReviewed — 409 заявка уже рассмотрена.
func AlreadyReviewed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeAlreadyReviewed, message)
}

// InvalidState — 409 операция недопустима в текущем статусе.
func InvalidState(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeInvalidState, message)
}

// ServiceUnavailable — 503 временно недоступна зависимость (очередь уведомлений).
func ServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
