// Пакет server — HTTP-сервер LMS Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/adhikarisumit/lms-module/internal/api/handlers"
	"github.com/adhikarisumit/lms-module/internal/api/middleware"
	"github.com/adhikarisumit/lms-module/internal/config"
	"github.com/adhikarisumit/lms-module/internal/domain/rbac"
)

// Server — HTTP-сервер LMS Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// validator может быть nil (без валидации запросов по OpenAPI).
func New(
	cfg *config.Config,
	logger *slog.Logger,
	handler *handlers.APIHandler,
	auth *middleware.SessionAuth,
	validator *middleware.RequestValidator,
) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, handler, auth, validator),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-маршрутизатор API.
func NewRouter(
	logger *slog.Logger,
	h *handlers.APIHandler,
	auth *middleware.SessionAuth,
	validator *middleware.RequestValidator,
) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics проверяются Kubernetes напрямую, без API Gateway.
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)
	router.Get("/.well-known/jwks.json", h.GetJWKS)

	validate := func(r chi.Router) {
		if validator != nil {
			r.Use(validator.Middleware())
		}
	}

	router.Route("/api/v1", func(r chi.Router) {
		// Публичные endpoints
		r.Group(func(r chi.Router) {
			validate(r)
			r.Post("/auth/register", h.Register)
			r.Post("/auth/login", h.Login)
			r.Post("/auth/verify-email", h.VerifyEmail)
			r.Post("/auth/resend-verification", h.ResendVerification)
			r.Post("/auth/forgot-password", h.ForgotPassword)
			r.Post("/auth/reset-password", h.ResetPassword)
			// refresh сам проверяет переданный токен
			r.Post("/auth/refresh", h.RefreshSession)
			r.Get("/courses", h.ListCourses)
			r.Get("/courses/{id}", h.GetCourse)
			r.Get("/resources", h.ListResources)
			r.Get("/resources/{id}", h.GetResource)
		})

		// Любой аутентифицированный пользователь
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware())
			validate(r)
			r.Post("/auth/logout-all", h.LogoutAll)
			r.Get("/me", h.GetMe)
			r.Patch("/me", h.UpdateMe)
			r.Post("/me/password", h.ChangePassword)
			r.Get("/me/grants", h.GetMyGrants)
			r.Get("/purchase-requests", h.ListMyPurchaseRequests)
			r.Post("/purchase-requests", h.CreatePurchaseRequest)
			r.Get("/purchase-requests/{id}", h.GetPurchaseRequest)
			r.Delete("/purchase-requests/{id}", h.CancelPurchaseRequest)
		})

		// Администраторы. Ограничения super-admin проверяет сервисный слой.
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.Middleware())
			r.Use(middleware.RequireTier(rbac.TierAdmin))
			validate(r)

			r.Get("/accounts", h.ListAccounts)
			r.Post("/accounts", h.ProvisionAdmin)
			r.Get("/accounts/{id}", h.GetAccount)
			r.Patch("/accounts/{id}", h.UpdateAccount)
			r.Delete("/accounts/{id}", h.DeleteAccount)
			r.Post("/accounts/{id}/ban", h.BanAccount)
			r.Post("/accounts/{id}/unban", h.UnbanAccount)
			r.Post("/accounts/{id}/freeze", h.FreezeAccount)
			r.Post("/accounts/{id}/unfreeze", h.UnfreezeAccount)
			r.Post("/accounts/{id}/role", h.SetAccountRole)
			r.Post("/accounts/{id}/profile-verification", h.SetProfileVerification)
			r.Post("/accounts/{id}/invalidate-sessions", h.InvalidateAccountSessions)

			r.Get("/purchase-requests", h.ListPurchaseRequests)
			r.Delete("/purchase-requests/{id}", h.DeletePurchaseRequest)
			r.Post("/purchase-requests/{id}/review", h.ReviewPurchaseRequest)

			r.Get("/courses", h.ListAllCourses)
			r.Post("/courses", h.CreateCourse)
			r.Put("/courses/{id}/published", h.SetCoursePublished)
			r.Get("/resources", h.ListAllResources)
			r.Post("/resources", h.CreateResource)
			r.Put("/resources/{id}/published", h.SetResourcePublished)

			r.Get("/payments", h.ListPayments)
			r.Get("/payments/summary", h.GetPaymentSummary)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
