// Точка входа LMS Module — учётные записи, сессии и заявки на покупку
// курсов и ресурсов. Загружает конфигурацию, подключается к PostgreSQL
// и Redis, применяет миграции, создаёт ключ подписи сессий, сервисный слой
// и API handlers, запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/adhikarisumit/lms-module/internal/api/handlers"
	"github.com/adhikarisumit/lms-module/internal/api/middleware"
	"github.com/adhikarisumit/lms-module/internal/api/openapi"
	"github.com/adhikarisumit/lms-module/internal/config"
	"github.com/adhikarisumit/lms-module/internal/database"
	"github.com/adhikarisumit/lms-module/internal/notify"
	"github.com/adhikarisumit/lms-module/internal/password"
	"github.com/adhikarisumit/lms-module/internal/ratelimit"
	"github.com/adhikarisumit/lms-module/internal/repository"
	"github.com/adhikarisumit/lms-module/internal/server"
	"github.com/adhikarisumit/lms-module/internal/service"
	"github.com/adhikarisumit/lms-module/internal/session"
	"github.com/adhikarisumit/lms-module/internal/tokens"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("LMS Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("LMS_DEPHEALTH_GROUP") == "" {
		logger.Warn("LMS_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Подключение к Redis (одноразовые токены, лимит входа, уведомления)
	rdb, err := database.ConnectRedis(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rdb.Close()

	// 6. Ключ подписи сессионных токенов и JWKS
	privateKey, err := session.LoadPrivateKey(cfg.JWTPrivateKeyPEM, logger)
	if err != nil {
		logger.Error("Ошибка загрузки ключа подписи", slog.String("error", err.Error()))
		os.Exit(1)
	}
	keys, err := session.NewKeySet(ctx, privateKey)
	if err != nil {
		logger.Error("Ошибка создания набора ключей", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Ключ подписи сессий загружен", slog.String("kid", keys.KID()))

	// 7. Инфраструктура: хеширование паролей, токены, лимитер, очередь уведомлений
	hasher, err := password.NewHasher(password.DefaultParams)
	if err != nil {
		logger.Error("Ошибка создания хешера паролей", slog.String("error", err.Error()))
		os.Exit(1)
	}
	tokenStore := tokens.NewStore(rdb, "")
	limiter := ratelimit.NewLoginLimiter(rdb, cfg.LoginMaxAttempts, cfg.LoginCooldown)
	publisher := notify.NewPublisher(rdb, cfg.NotifyQueue, logger)

	// 8. Repositories
	repos := repository.NewRepositories(pool)
	txRunner := repository.NewTxRunner(pool)

	// 9. Session Authority
	authority := session.NewAuthority(repos.Accounts, hasher, limiter, keys, session.Options{
		Issuer:          cfg.JWTIssuer,
		TTL:             cfg.SessionTTL,
		Leeway:          cfg.JWTLeeway,
		SuperAdminEmail: cfg.SuperAdminEmail,
	}, logger)

	// 10. Services
	accountsSvc := service.NewAccountService(repos, txRunner, hasher, tokenStore, publisher,
		service.AccountOptions{
			SuperAdminEmail:  cfg.SuperAdminEmail,
			VerificationTTL:  cfg.VerificationTokenTTL,
			PasswordResetTTL: cfg.PasswordResetTTL,
		}, logger)
	catalogSvc := service.NewCatalogService(repos,
		service.NewCatalogCache(cfg.CatalogCacheSize, cfg.CatalogCacheTTL),
		cfg.DefaultCurrency, logger)
	purchasesSvc := service.NewPurchaseService(repos, txRunner, catalogSvc, publisher, nil, logger)
	paymentsSvc := service.NewPaymentService(repos.Payments, logger)

	// 10.1 Учётная запись супер-администратора (создаётся только здесь, регистрация её запрещает)
	if _, err := accountsSvc.EnsureSuperAdmin(ctx, cfg.SuperAdminName, cfg.SuperAdminPassword); err != nil {
		logger.Error("Ошибка создания учётной записи супер-администратора", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 11. Readiness checkers (PostgreSQL + Redis)
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		database.NewRedisReadinessChecker(rdb),
	)

	// 12. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		authority,
		accountsSvc,
		purchasesSvc,
		catalogSvc,
		paymentsSvc,
		logger,
	)

	// 13. Middleware аутентификации и валидации запросов
	sessionAuth := middleware.NewSessionAuth(authority, logger)
	validator, err := middleware.NewRequestValidator(openapi.Spec, logger)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. topologymetrics — мониторинг зависимостей (PostgreSQL)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"lms-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 15. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, sessionAuth, validator)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 16. Остановка фоновых задач: дожидаемся уведомлений, поставленных в фоне
	notifyCtx, notifyCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if err := publisher.Close(notifyCtx); err != nil {
		logger.Warn("Не все уведомления отправлены до остановки", slog.String("error", err.Error()))
	}
	notifyCancel()

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("LMS Module остановлен")
}
