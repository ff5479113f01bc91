// Пакет config — загрузка и валидация конфигурации LMS Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации LMS Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8000-8099)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Redis ---

	// Адрес Redis (host:port): одноразовые токены, лимитер входа, очередь уведомлений
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Ключ списка Redis, в который публикуются уведомления для почтового воркера
	NotifyQueue string

	// --- Сессии ---

	// Issuer выпускаемых JWT
	JWTIssuer string
	// Приватный RSA-ключ в PEM (пусто — эфемерный ключ на время жизни процесса)
	JWTPrivateKeyPEM string
	// Время жизни сессионного токена
	SessionTTL time.Duration
	// Допустимое отклонение часов при проверке JWT
	JWTLeeway time.Duration
	// Email супер-администратора. Сравнивается при каждой проверке прав,
	// в таблице accounts отдельного флага нет.
	SuperAdminEmail string
	// Имя и начальный пароль учётной записи супер-администратора, создаваемой
	// при первом запуске. Пустой пароль — задаётся через сброс пароля.
	SuperAdminName     string
	SuperAdminPassword string

	// --- Учётные записи ---

	VerificationTokenTTL time.Duration
	PasswordResetTTL     time.Duration
	// Максимум неудачных попыток входа за окно LoginCooldown
	LoginMaxAttempts int
	LoginCooldown    time.Duration

	// --- Каталог ---

	CatalogCacheSize int
	CatalogCacheTTL  time.Duration
	// Валюта по умолчанию для курсов и ресурсов
	DefaultCurrency string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// LMS_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("LMS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("LMS_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8099 {
		return nil, fmt.Errorf("LMS_PORT: значение %d вне допустимого диапазона 8000-8099", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("LMS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LMS_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("LMS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("LMS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("LMS_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("LMS_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("LMS_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("LMS_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("LMS_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("LMS_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("LMS_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("LMS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("LMS_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("LMS_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("LMS_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("LMS_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("LMS_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("LMS_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Redis ---

	if cfg.RedisAddr, err = getEnvRequired("LMS_REDIS_ADDR"); err != nil {
		return nil, err
	}
	cfg.RedisPassword = getEnvDefault("LMS_REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvInt("LMS_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("LMS_REDIS_DB: %w", err)
	}
	cfg.NotifyQueue = getEnvDefault("LMS_NOTIFY_QUEUE", "lms:notifications")

	// --- Сессии ---

	cfg.JWTIssuer = getEnvDefault("LMS_JWT_ISSUER", "lms-module")
	cfg.JWTPrivateKeyPEM, err = getEnvKey("LMS_JWT_PRIVATE_KEY")
	if err != nil {
		return nil, fmt.Errorf("LMS_JWT_PRIVATE_KEY_FILE: %w", err)
	}

	// LMS_SESSION_TTL — по умолчанию 30 дней
	if cfg.SessionTTL, err = getEnvDuration("LMS_SESSION_TTL", 30*24*time.Hour); err != nil {
		return nil, fmt.Errorf("LMS_SESSION_TTL: %w", err)
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("LMS_SESSION_TTL: значение должно быть положительным")
	}

	if cfg.JWTLeeway, err = getEnvDuration("LMS_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("LMS_JWT_LEEWAY: %w", err)
	}
	if cfg.JWTLeeway < 0 || cfg.JWTLeeway > 2*time.Minute {
		return nil, fmt.Errorf("LMS_JWT_LEEWAY: значение %s вне допустимого диапазона 0-2m", cfg.JWTLeeway)
	}

	// LMS_SUPER_ADMIN_EMAIL — обязательный
	superAdmin, err := getEnvRequired("LMS_SUPER_ADMIN_EMAIL")
	if err != nil {
		return nil, err
	}
	cfg.SuperAdminEmail = strings.ToLower(strings.TrimSpace(superAdmin))
	cfg.SuperAdminName = getEnvDefault("LMS_SUPER_ADMIN_NAME", "Super Admin")
	cfg.SuperAdminPassword, err = getEnvSecret("LMS_SUPER_ADMIN_PASSWORD")
	if err != nil {
		return nil, fmt.Errorf("LMS_SUPER_ADMIN_PASSWORD_FILE: %w", err)
	}

	// --- Учётные записи ---

	if cfg.VerificationTokenTTL, err = getEnvDuration("LMS_VERIFICATION_TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, fmt.Errorf("LMS_VERIFICATION_TOKEN_TTL: %w", err)
	}
	if cfg.PasswordResetTTL, err = getEnvDuration("LMS_PASSWORD_RESET_TTL", time.Hour); err != nil {
		return nil, fmt.Errorf("LMS_PASSWORD_RESET_TTL: %w", err)
	}
	cfg.LoginMaxAttempts, err = getEnvInt("LMS_LOGIN_MAX_ATTEMPTS", 10)
	if err != nil {
		return nil, fmt.Errorf("LMS_LOGIN_MAX_ATTEMPTS: %w", err)
	}
	if cfg.LoginMaxAttempts < 1 {
		return nil, fmt.Errorf("LMS_LOGIN_MAX_ATTEMPTS: значение %d меньше 1", cfg.LoginMaxAttempts)
	}
	if cfg.LoginCooldown, err = getEnvDuration("LMS_LOGIN_COOLDOWN", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("LMS_LOGIN_COOLDOWN: %w", err)
	}

	// --- Каталог ---

	cfg.CatalogCacheSize, err = getEnvInt("LMS_CATALOG_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("LMS_CATALOG_CACHE_SIZE: %w", err)
	}
	if cfg.CatalogCacheSize < 1 || cfg.CatalogCacheSize > 100000 {
		return nil, fmt.Errorf("LMS_CATALOG_CACHE_SIZE: значение %d вне допустимого диапазона 1-100000", cfg.CatalogCacheSize)
	}
	if cfg.CatalogCacheTTL, err = getEnvDuration("LMS_CATALOG_CACHE_TTL", time.Minute); err != nil {
		return nil, fmt.Errorf("LMS_CATALOG_CACHE_TTL: %w", err)
	}
	cfg.DefaultCurrency = strings.ToUpper(getEnvDefault("LMS_DEFAULT_CURRENCY", "JPY"))
	if len(cfg.DefaultCurrency) != 3 {
		return nil, fmt.Errorf("LMS_DEFAULT_CURRENCY: ожидается трёхбуквенный код ISO 4217, получено %q", cfg.DefaultCurrency)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("LMS_DEPHEALTH_GROUP", "lms")
	if cfg.DephealthCheckInterval, err = getEnvDuration("LMS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("LMS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	if cfg.ShutdownTimeout, err = getEnvDuration("LMS_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("LMS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// IsSuperAdminEmail сообщает, совпадает ли email с настроенным супер-администратором.
func (c *Config) IsSuperAdminEmail(email string) bool {
	return c.SuperAdminEmail != "" && strings.EqualFold(strings.TrimSpace(email), c.SuperAdminEmail)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvKey читает PEM-ключ из KEY_FILE (приоритет) или из KEY.
// Экранированные переводы строк (\n) в значении переменной заменяются на настоящие.
func getEnvKey(key string) (string, error) {
	if file := os.Getenv(key + "_FILE"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("чтение файла ключа: %w", err)
		}
		return normalizePEM(string(data)), nil
	}
	return normalizePEM(os.Getenv(key)), nil
}

// getEnvSecret читает секрет из KEY_FILE (приоритет) или из KEY.
// Завершающий перевод строки файла отбрасывается.
func getEnvSecret(key string) (string, error) {
	if file := os.Getenv(key + "_FILE"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("чтение файла секрета: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
	return os.Getenv(key), nil
}

// normalizePEM приводит PEM из переменной окружения к многострочному виду.
func normalizePEM(value string) string {
	value = strings.TrimSpace(value)
	if strings.Contains(value, `\n`) && !strings.Contains(value, "\n") {
		value = strings.ReplaceAll(value, `\n`, "\n")
	}
	return value
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
