// Пакет session — выдача и проверка сессионных токенов LMS Module.
//
// Токен — самодостаточный JWT (RS256), на сервере не хранится. В токен
// вшивается snapshot счётчика session_version учётной записи; токен
// действителен, только пока snapshot совпадает с текущим значением в БД.
// Увеличение счётчика (InvalidateAll) мгновенно отзывает все выданные
// токены учётной записи. Счётчик читается из БД при каждой проверке
// и не кэшируется.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
	"github.com/adhikarisumit/lms-module/internal/domain/rbac"
	"github.com/adhikarisumit/lms-module/internal/ratelimit"
	"github.com/adhikarisumit/lms-module/internal/repository"
)

// Ошибки сессионного слоя.
var (
	// ErrInvalidCredentials — неверный email или пароль (без уточнения, что именно).
	ErrInvalidCredentials = errors.New("неверный email или пароль")
	// ErrEmailNotVerified — email студента не подтверждён.
	ErrEmailNotVerified = errors.New("email не подтверждён")
	// ErrBanned — учётная запись заблокирована.
	ErrBanned = errors.New("учётная запись заблокирована")
	// ErrTooManyAttempts — превышен лимит попыток входа.
	ErrTooManyAttempts = errors.New("слишком много попыток входа, повторите позже")
	// ErrExpired — срок действия токена истёк.
	ErrExpired = errors.New("срок действия сессии истёк")
	// ErrInvalidToken — токен повреждён, подделан или выпущен другим издателем.
	ErrInvalidToken = errors.New("невалидный токен")
	// ErrInvalidated — сессия отозвана (session_version изменился или учётная запись удалена).
	ErrInvalidated = errors.New("сессия отозвана")
)

// Prometheus-метрики сессионного слоя.
var (
	authAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_auth_attempts_total",
		Help: "Количество попыток входа по результату.",
	}, []string{"result"})
	sessionInvalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_session_invalidations_total",
		Help: "Количество инвалидаций всех сессий учётной записи по причине.",
	}, []string{"reason"})
)

// AccountStore — чтение учётных записей и атомарное увеличение session_version.
// Реализуется repository.AccountRepository.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	IncrementSessionVersion(ctx context.Context, id string) (int, error)
}

// PasswordVerifier — проверка пароля по хешу. Реализуется password.Hasher.
type PasswordVerifier interface {
	Verify(password, encoded string) (bool, error)
	VerifyDummy(password string) bool
}

// Limiter — ограничение попыток входа. Реализуется ratelimit.LoginLimiter.
type Limiter interface {
	Check(ctx context.Context, email, ip string) error
	Reset(ctx context.Context, email, ip string) error
}

// Options — параметры выдачи токенов.
type Options struct {
	Issuer string
	// TTL — время жизни токена
	TTL time.Duration
	// Leeway — допустимое отклонение часов
	Leeway time.Duration
	// SuperAdminEmail — email супер-администратора
	SuperAdminEmail string
	// Now — источник времени (nil — time.Now)
	Now func() time.Time
}

// Claims — claims сессионного токена.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	// Role — уровень доступа на момент выдачи (student, admin, super-admin)
	Role string `json:"role"`
	// SessionVersion — snapshot session_version учётной записи
	SessionVersion int `json:"sv"`
}

// Identity — проверенная личность вызывающего.
// Поля берутся из текущей записи в БД, а не из токена.
type Identity struct {
	AccountID      string
	Email          string
	Name           string
	Tier           rbac.Tier
	SessionVersion int
}

// Role возвращает имя уровня доступа.
func (i *Identity) Role() string {
	return i.Tier.String()
}

// Credential — выданный сессионный токен.
type Credential struct {
	Token     string
	ExpiresAt time.Time
	Identity  *Identity
}

// Authority — выдача, проверка и отзыв сессионных токенов.
type Authority struct {
	accounts AccountStore
	hasher   PasswordVerifier
	limiter  Limiter
	keys     *KeySet
	opts     Options
	logger   *slog.Logger
}

// NewAuthority создаёт Authority. limiter может быть nil (без ограничения попыток).
func NewAuthority(
	accounts AccountStore,
	hasher PasswordVerifier,
	limiter Limiter,
	keys *KeySet,
	opts Options,
	logger *slog.Logger,
) *Authority {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Authority{
		accounts: accounts,
		hasher:   hasher,
		limiter:  limiter,
		keys:     keys,
		opts:     opts,
		logger:   logger.With(slog.String("component", "session")),
	}
}

// TierOf вычисляет уровень доступа учётной записи с учётом супер-администратора.
func (a *Authority) TierOf(acc *model.Account) rbac.Tier {
	return rbac.ResolveTier(acc.Role, acc.Email, a.opts.SuperAdminEmail)
}

// Authenticate проверяет email и пароль и выдаёт токен.
//
// Отсутствие учётной записи, отсутствие пароля и неверный пароль дают
// одинаковую ErrInvalidCredentials. ErrEmailNotVerified возвращается только
// уровням ниже admin; ErrBanned — после проверки пароля.
func (a *Authority) Authenticate(ctx context.Context, email, password, remoteIP string) (*Credential, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if a.limiter != nil {
		if err := a.limiter.Check(ctx, email, remoteIP); err != nil {
			if errors.Is(err, ratelimit.ErrTooManyAttempts) {
				authAttemptsTotal.WithLabelValues("rate_limited").Inc()
				a.logger.Warn("Превышен лимит попыток входа",
					slog.String("email", email),
					slog.String("remote_addr", remoteIP),
				)
				return nil, ErrTooManyAttempts
			}
			return nil, fmt.Errorf("проверка лимита входа: %w", err)
		}
	}

	acc, err := a.accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("получение учётной записи: %w", err)
		}
		a.hasher.VerifyDummy(password)
		return nil, a.fail("unknown_account", email, remoteIP)
	}

	if !acc.HasPassword() {
		a.hasher.VerifyDummy(password)
		return nil, a.fail("no_password", email, remoteIP)
	}

	ok, err := a.hasher.Verify(password, *acc.PasswordHash)
	if err != nil {
		a.logger.Error("Повреждённый хеш пароля",
			slog.String("account_id", acc.ID),
			slog.String("error", err.Error()),
		)
		return nil, a.fail("bad_hash", email, remoteIP)
	}
	if !ok {
		return nil, a.fail("wrong_password", email, remoteIP)
	}

	tier := a.TierOf(acc)
	if tier < rbac.TierAdmin && !acc.IsEmailVerified() {
		authAttemptsTotal.WithLabelValues("email_not_verified").Inc()
		return nil, ErrEmailNotVerified
	}
	if acc.Banned {
		authAttemptsTotal.WithLabelValues("banned").Inc()
		a.logger.Warn("Попытка входа в заблокированную учётную запись",
			slog.String("account_id", acc.ID),
			slog.String("remote_addr", remoteIP),
		)
		return nil, ErrBanned
	}

	if a.limiter != nil {
		if err := a.limiter.Reset(ctx, email, remoteIP); err != nil {
			a.logger.Warn("Не удалось сбросить счётчик попыток входа", slog.String("error", err.Error()))
		}
	}

	cred, err := a.Issue(acc)
	if err != nil {
		return nil, err
	}

	authAttemptsTotal.WithLabelValues("success").Inc()
	a.logger.Info("Успешный вход",
		slog.String("account_id", acc.ID),
		slog.String("role", cred.Identity.Role()),
	)
	return cred, nil
}

// fail фиксирует неудачную попытку входа. Пароль в лог не попадает.
func (a *Authority) fail(reason, email, remoteIP string) error {
	authAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
	a.logger.Info("Неудачная попытка входа",
		slog.String("reason", reason),
		slog.String("email", email),
		slog.String("remote_addr", remoteIP),
	)
	return ErrInvalidCredentials
}

// Issue выдаёт токен для учётной записи с её текущим session_version.
func (a *Authority) Issue(acc *model.Account) (*Credential, error) {
	now := a.opts.Now()
	exp := now.Add(a.opts.TTL)
	tier := a.TierOf(acc)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.opts.Issuer,
			Subject:   acc.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:          acc.Email,
		Role:           tier.String(),
		SessionVersion: acc.SessionVersion,
	}

	token, err := a.keys.Sign(claims)
	if err != nil {
		return nil, fmt.Errorf("ошибка подписи токена: %w", err)
	}

	return &Credential{
		Token:     token,
		ExpiresAt: exp,
		Identity:  a.identityOf(acc),
	}, nil
}

// Verify проверяет подпись и срок токена, затем сравнивает snapshot
// session_version с текущим значением в БД.
//
// ErrExpired и ErrInvalidToken определяются по самому токену,
// ErrInvalidated — по живому чтению учётной записи. Прочие ошибки —
// сбои хранилища.
func (a *Authority) Verify(ctx context.Context, token string) (*Identity, error) {
	acc, err := a.verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return a.identityOf(acc), nil
}

// Refresh проверяет токен и выдаёт новый с текущими данными учётной записи.
// Новый токен строится по той же записи, что прочитана при проверке.
func (a *Authority) Refresh(ctx context.Context, token string) (*Credential, error) {
	acc, err := a.verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return a.Issue(acc)
}

// verify проверяет токен и возвращает живую учётную запись, на которую он выдан.
func (a *Authority) verify(ctx context.Context, token string) (*model.Account, error) {
	claims, err := a.parse(ctx, token)
	if err != nil {
		return nil, err
	}

	acc, err := a.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidated
		}
		return nil, fmt.Errorf("получение учётной записи: %w", err)
	}

	if acc.SessionVersion != claims.SessionVersion || acc.Banned {
		return nil, ErrInvalidated
	}
	return acc, nil
}

// InvalidateAll атомарно увеличивает session_version учётной записи,
// отзывая все выданные ей токены. Возвращает новое значение счётчика.
func (a *Authority) InvalidateAll(ctx context.Context, accountID, reason string) (int, error) {
	return InvalidateAll(ctx, a.accounts, accountID, reason, a.logger)
}

// InvalidateAll увеличивает session_version через переданное хранилище.
// Позволяет выполнить инвалидацию внутри транзакции вызывающего.
func InvalidateAll(ctx context.Context, accounts AccountStore, accountID, reason string, logger *slog.Logger) (int, error) {
	version, err := accounts.IncrementSessionVersion(ctx, accountID)
	if err != nil {
		return 0, err
	}

	sessionInvalidationsTotal.WithLabelValues(reason).Inc()
	if logger != nil {
		logger.Info("Все сессии учётной записи отозваны",
			slog.String("account_id", accountID),
			slog.String("reason", reason),
			slog.Int("session_version", version),
		)
	}
	return version, nil
}

// JWKS возвращает публичный набор ключей для проверки токенов другими сервисами.
func (a *Authority) JWKS(ctx context.Context) (json.RawMessage, error) {
	return a.keys.JWKS(ctx)
}

// parse разбирает и проверяет токен без обращения к БД.
func (a *Authority) parse(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.opts.Leeway),
		jwt.WithTimeFunc(a.opts.Now),
	}
	if a.opts.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.opts.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, a.keys.Keyfunc(ctx), opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		a.logger.Debug("JWT валидация не пройдена", slog.String("error", err.Error()))
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (a *Authority) identityOf(acc *model.Account) *Identity {
	return &Identity{
		AccountID:      acc.ID,
		Email:          acc.Email,
		Name:           acc.Name,
		Tier:           a.TierOf(acc),
		SessionVersion: acc.SessionVersion,
	}
}
