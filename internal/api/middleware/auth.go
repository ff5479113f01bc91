// auth.go — middleware аутентификации по сессионному токену LMS Module.
// Токен проверяется через session.Authority: подпись, срок и совпадение
// session_version с текущим значением в БД. Истёкший, отозванный и
// невалидный токены одинаково дают 401.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/adhikarisumit/lms-module/internal/api/errors"
	"github.com/adhikarisumit/lms-module/internal/domain/rbac"
	"github.com/adhikarisumit/lms-module/internal/session"
)

type contextKey string

const (
	// ContextKeyIdentity — проверенная личность вызывающего в контексте запроса.
	ContextKeyIdentity contextKey = "identity"
)

// TokenVerifier — проверка сессионного токена. Реализуется session.Authority.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*session.Identity, error)
}

// SessionAuth — middleware аутентификации.
type SessionAuth struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewSessionAuth создаёт middleware аутентификации.
func NewSessionAuth(verifier TokenVerifier, logger *slog.Logger) *SessionAuth {
	return &SessionAuth{
		verifier: verifier,
		logger:   logger.With(slog.String("component", "session_auth")),
	}
}

// Middleware возвращает HTTP middleware, требующий валидный Bearer token.
// Identity помещается в контекст запроса.
func (a *SessionAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				apierrors.Unauthorized(w, err.Error())
				return
			}

			identity, err := a.verifier.Verify(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, session.ErrExpired):
					apierrors.Unauthorized(w, "Срок действия сессии истёк")
				case errors.Is(err, session.ErrInvalidated):
					apierrors.Unauthorized(w, "Сессия отозвана, выполните вход повторно")
				case errors.Is(err, session.ErrInvalidToken):
					apierrors.Unauthorized(w, "Невалидный токен")
				default:
					a.logger.Error("Ошибка проверки сессии",
						slog.String("error", err.Error()),
						slog.String("remote_addr", r.RemoteAddr),
					)
					apierrors.InternalError(w, "Ошибка проверки сессии")
				}
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyIdentity, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken извлекает токен из заголовка Authorization.
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("отсутствует заголовок Authorization")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("неверный формат Authorization: ожидается Bearer <token>")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("пустой Bearer token")
	}
	return token, nil
}

// RequireTier возвращает middleware, требующий уровень доступа не ниже min.
// Должен использоваться ПОСЛЕ SessionAuth.Middleware().
func RequireTier(min rbac.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				apierrors.Unauthorized(w, "Отсутствует сессия в контексте")
				return
			}
			if !identity.Tier.AtLeast(min) {
				apierrors.Forbidden(w, "Недостаточно прав: требуется уровень "+min.String())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext извлекает Identity из контекста запроса.
// Возвращает nil, если запрос не аутентифицирован.
func IdentityFromContext(ctx context.Context) *session.Identity {
	identity, _ := ctx.Value(ContextKeyIdentity).(*session.Identity)
	return identity
}

// WithIdentity помещает Identity в контекст. Используется в тестах обработчиков.
func WithIdentity(ctx context.Context, identity *session.Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, identity)
}
