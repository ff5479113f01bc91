// accounts.go — жизненный цикл учётных записей: регистрация, подтверждение email,
// смена и сброс пароля, администрирование (блокировка, заморозка, роли).
//
// Любое изменение, влияющее на доверие к выданным токенам (блокировка, смена
// email или имени, роли, пароля), выполняется в одной транзакции с увеличением
// session_version.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
	"github.com/adhikarisumit/lms-module/internal/domain/rbac"
	"github.com/adhikarisumit/lms-module/internal/notify"
	"github.com/adhikarisumit/lms-module/internal/password"
	"github.com/adhikarisumit/lms-module/internal/repository"
	"github.com/adhikarisumit/lms-module/internal/session"
	"github.com/adhikarisumit/lms-module/internal/tokens"
)

// Причины отзыва сессий (метка lms_session_invalidations_total).
const (
	reasonBan            = "ban"
	reasonProfileChange  = "profile_change"
	reasonRoleChange     = "role_change"
	reasonPasswordReset  = "password_reset"
	reasonPasswordChange = "password_change"
	reasonSignOut        = "sign_out_everywhere"
	reasonAdminRequest   = "admin_request"
)

const (
	maxNameLength      = 100
	maxBanReasonLength = 500
)

// AccountOptions — параметры сервиса учётных записей.
type AccountOptions struct {
	SuperAdminEmail  string
	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration
	// Now — источник времени (nil — time.Now)
	Now func() time.Time
}

// ProfileUpdate — изменяемые поля профиля. nil — поле не меняется.
type ProfileUpdate struct {
	Name  *string
	Email *string
}

// AccountService — сервис учётных записей.
type AccountService struct {
	repos    *repository.Repositories
	tx       Transactor
	hasher   PasswordHasher
	tokens   TokenStore
	notifier Notifier
	opts     AccountOptions
	logger   *slog.Logger
}

// NewAccountService создаёт сервис учётных записей.
func NewAccountService(
	repos *repository.Repositories,
	tx Transactor,
	hasher PasswordHasher,
	tokenStore TokenStore,
	notifier Notifier,
	opts AccountOptions,
	logger *slog.Logger,
) *AccountService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AccountService{
		repos:    repos,
		tx:       tx,
		hasher:   hasher,
		tokens:   tokenStore,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With(slog.String("component", "account_service")),
	}
}

// TierOf возвращает уровень доступа учётной записи.
func (s *AccountService) TierOf(acc *model.Account) rbac.Tier {
	return rbac.ResolveTier(acc.Role, acc.Email, s.opts.SuperAdminEmail)
}

func (s *AccountService) isSuperAdminEmail(email string) bool {
	return s.opts.SuperAdminEmail != "" && strings.EqualFold(strings.TrimSpace(email), s.opts.SuperAdminEmail)
}

func (s *AccountService) now() time.Time {
	return s.opts.Now().UTC()
}

// --- Самообслуживание ---

// Register создаёт учётную запись студента с неподтверждённым email и
// отправляет письмо подтверждения. Если уведомление не удалось поставить
// в очередь, созданная запись удаляется.
func (s *AccountService) Register(ctx context.Context, name, email, pass string) (*model.Account, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	email, err = validateEmail(email)
	if err != nil {
		return nil, err
	}
	// Учётная запись супер-администратора создаётся только EnsureSuperAdmin при старте
	if s.isSuperAdminEmail(email) {
		s.logger.Warn("Попытка регистрации с email супер-администратора")
		return nil, ErrForbidden
	}
	if err := password.Validate(pass); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return nil, fmt.Errorf("хеширование пароля: %w", err)
	}

	acc := &model.Account{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: &hash,
		Role:         model.RoleStudent,
	}

	err = s.tx.InTx(ctx, func(repos *repository.Repositories) error {
		return mapRepoErr(repos.Accounts.Create(ctx, acc))
	})
	if err != nil {
		return nil, err
	}

	// Письмо ставится в очередь только после коммита; при сбое запись удаляется
	if err := s.sendVerification(ctx, acc); err != nil {
		if delErr := s.repos.Accounts.Delete(ctx, acc.ID); delErr != nil {
			s.logger.Error("Не удалось удалить учётную запись без письма подтверждения",
				slog.String("account_id", acc.ID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, err
	}

	s.logger.Info("Зарегистрирована учётная запись", slog.String("account_id", acc.ID))
	return acc, nil
}

// sendVerification выдаёт токен подтверждения email и ставит письмо в очередь.
func (s *AccountService) sendVerification(ctx context.Context, acc *model.Account) error {
	token, err := s.tokens.Issue(ctx, tokens.PurposeEmailVerification, acc.ID, acc.Email, s.opts.VerificationTTL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationUnavailable, err)
	}

	err = s.notifier.Send(ctx, notify.Message{
		Kind: notify.KindEmailVerification,
		To:   acc.Email,
		Name: acc.Name,
		Data: map[string]string{"token": token},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationUnavailable, err)
	}
	return nil
}

// VerifyEmail погашает токен подтверждения и отмечает email подтверждённым.
// Токен, выданный на прежний email, после смены адреса не действует.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	claim, err := s.consume(ctx, tokens.PurposeEmailVerification, token)
	if err != nil {
		return err
	}

	return s.tx.InTx(ctx, func(repos *repository.Repositories) error {
		acc, err := s.claimedAccount(ctx, repos, claim)
		if err != nil {
			return err
		}
		if acc.IsEmailVerified() {
			return nil
		}

		now := s.now()
		acc.EmailVerifiedAt = &now
		if err := repos.Accounts.Update(ctx, acc); err != nil {
			return mapRepoErr(err)
		}
		s.logger.Info("Email подтверждён", slog.String("account_id", acc.ID))
		return nil
	})
}

// ResendVerification повторно отправляет письмо подтверждения.
// Для неизвестного или уже подтверждённого адреса ничего не делает.
func (s *AccountService) ResendVerification(ctx context.Context, email string) error {
	acc, err := s.repos.Accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if acc.IsEmailVerified() {
		return nil
	}
	return s.sendVerification(ctx, acc)
}

// RequestPasswordReset отправляет письмо со ссылкой сброса пароля.
// Результат для вызывающего не зависит от существования адреса;
// сбой отправки только логируется.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	acc, err := s.repos.Accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("Сброс пароля для неизвестного email")
			return nil
		}
		return err
	}

	token, err := s.tokens.Issue(ctx, tokens.PurposePasswordReset, acc.ID, acc.Email, s.opts.PasswordResetTTL)
	if err != nil {
		s.logger.Warn("Не удалось выдать токен сброса пароля",
			slog.String("account_id", acc.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	err = s.notifier.Send(ctx, notify.Message{
		Kind: notify.KindPasswordReset,
		To:   acc.Email,
		Name: acc.Name,
		Data: map[string]string{"token": token},
	})
	if err != nil {
		s.logger.Warn("Не удалось отправить письмо сброса пароля",
			slog.String("account_id", acc.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// ResetPassword устанавливает новый пароль по токену сброса и отзывает все сессии.
// Письмо сброса подтверждает владение адресом, поэтому email отмечается подтверждённым.
// Токен погашается последним шагом транзакции: при сбое БД он остаётся действующим.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := password.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	claim, err := s.tokenClaim(ctx, tokens.PurposePasswordReset, token, false)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("хеширование пароля: %w", err)
	}

	return s.tx.InTx(ctx, func(repos *repository.Repositories) error {
		acc, err := s.claimedAccount(ctx, repos, claim)
		if err != nil {
			return err
		}

		acc.PasswordHash = &hash
		if !acc.IsEmailVerified() {
			now := s.now()
			acc.EmailVerifiedAt = &now
		}
		if err := repos.Accounts.Update(ctx, acc); err != nil {
			return mapRepoErr(err)
		}

		if _, err := session.InvalidateAll(ctx, repos.Accounts, acc.ID, reasonPasswordReset, s.logger); err != nil {
			return err
		}

		// Параллельный сброс тем же токеном погасит его первым, этот откатится
		_, err = s.tokenClaim(ctx, tokens.PurposePasswordReset, token, true)
		return err
	})
}

// ChangePassword меняет пароль после проверки текущего и отзывает все сессии.
// Учётной записи без пароля текущий пароль не нужен.
// Возвращает учётную запись с новым session_version для выдачи свежего токена.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, current, next string) (*model.Account, error) {
	if err := password.Validate(next); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return nil, fmt.Errorf("хеширование пароля: %w", err)
	}

	return s.mutate(ctx, accountID, nil, func(acc *model.Account) (string, error) {
		if acc.HasPassword() {
			ok, err := s.hasher.Verify(current, *acc.PasswordHash)
			if err != nil {
				return "", fmt.Errorf("проверка пароля: %w", err)
			}
			if !ok {
				return "", ErrWrongPassword
			}
		}
		acc.PasswordHash = &hash
		return reasonPasswordChange, nil
	})
}

// UpdateProfile меняет имя и email владельцем учётной записи.
// Любое изменение отзывает сессии; новый email студента требует подтверждения.
func (s *AccountService) UpdateProfile(ctx context.Context, accountID string, upd ProfileUpdate) (*model.Account, error) {
	var emailChanged bool
	acc, err := s.mutate(ctx, accountID, nil, func(acc *model.Account) (string, error) {
		var changed bool
		var err error
		changed, emailChanged, err = s.applyProfile(acc, upd)
		if err != nil || !changed {
			return "", err
		}
		return reasonProfileChange, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterEmailChange(ctx, acc, emailChanged)
	return acc, nil
}

// SignOutEverywhere отзывает все сессии учётной записи.
func (s *AccountService) SignOutEverywhere(ctx context.Context, accountID string) (int, error) {
	version, err := session.InvalidateAll(ctx, s.repos.Accounts, accountID, reasonSignOut, s.logger)
	if err != nil {
		return 0, mapRepoErr(err)
	}
	return version, nil
}

// Get возвращает учётную запись по ID.
func (s *AccountService) Get(ctx context.Context, id string) (*model.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	acc, err := s.repos.Accounts.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return acc, nil
}

// --- Администрирование ---

// ListAccounts возвращает учётные записи по фильтру и их общее количество.
func (s *AccountService) ListAccounts(ctx context.Context, actor *session.Identity, filter model.AccountFilter, limit, offset int) ([]*model.Account, int, error) {
	if err := s.requireOp(actor, rbac.OpListAccounts); err != nil {
		return nil, 0, err
	}

	accounts, err := s.repos.Accounts.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repos.Accounts.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}

// Ban блокирует учётную запись и отзывает все её сессии.
func (s *AccountService) Ban(ctx context.Context, actor *session.Identity, id, reason string) (*model.Account, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxBanReasonLength {
		return nil, fmt.Errorf("%w: причина блокировки длиннее %d символов", ErrValidation, maxBanReasonLength)
	}

	acc, err := s.adminMutate(ctx, actor, rbac.OpBanAccount, id, func(acc *model.Account) (string, error) {
		now := s.now()
		acc.Banned = true
		acc.BannedAt = &now
		acc.BanReason = nil
		if reason != "" {
			acc.BanReason = &reason
		}
		return reasonBan, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("Учётная запись заблокирована",
		slog.String("account_id", acc.ID),
		slog.String("actor_id", actor.AccountID),
	)
	return acc, nil
}

// Unban снимает блокировку.
func (s *AccountService) Unban(ctx context.Context, actor *session.Identity, id string) (*model.Account, error) {
	return s.adminMutate(ctx, actor, rbac.OpUnbanAccount, id, func(acc *model.Account) (string, error) {
		acc.Banned = false
		acc.BanReason = nil
		acc.BannedAt = nil
		return "", nil
	})
}

// Freeze замораживает учётную запись: вход разрешён, новые заявки на покупку — нет.
func (s *AccountService) Freeze(ctx context.Context, actor *session.Identity, id string) (*model.Account, error) {
	return s.adminMutate(ctx, actor, rbac.OpFreezeAccount, id, func(acc *model.Account) (string, error) {
		acc.Frozen = true
		return "", nil
	})
}

// Unfreeze снимает заморозку.
func (s *AccountService) Unfreeze(ctx context.Context, actor *session.Identity, id string) (*model.Account, error) {
	return s.adminMutate(ctx, actor, rbac.OpUnfreezeAccount, id, func(acc *model.Account) (string, error) {
		acc.Frozen = false
		return "", nil
	})
}

// AdminUpdateProfile меняет имя и email чужой учётной записи.
func (s *AccountService) AdminUpdateProfile(ctx context.Context, actor *session.Identity, id string, upd ProfileUpdate) (*model.Account, error) {
	var emailChanged bool
	acc, err := s.adminMutate(ctx, actor, rbac.OpEditAccount, id, func(acc *model.Account) (string, error) {
		var changed bool
		var err error
		changed, emailChanged, err = s.applyProfile(acc, upd)
		if err != nil || !changed {
			return "", err
		}
		return reasonProfileChange, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterEmailChange(ctx, acc, emailChanged)
	return acc, nil
}

// SetRole меняет хранимую роль (student, admin) и отзывает сессии.
func (s *AccountService) SetRole(ctx context.Context, actor *session.Identity, id, role string) (*model.Account, error) {
	if !rbac.IsValidRole(role) {
		return nil, ErrInvalidRole
	}

	acc, err := s.adminMutate(ctx, actor, rbac.OpSetRole, id, func(acc *model.Account) (string, error) {
		if acc.Role == role {
			return "", nil
		}
		acc.Role = role
		return reasonRoleChange, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Роль учётной записи изменена",
		slog.String("account_id", acc.ID),
		slog.String("role", role),
		slog.String("actor_id", actor.AccountID),
	)
	return acc, nil
}

// SetProfileVerified отмечает профиль проверенным или снимает отметку.
func (s *AccountService) SetProfileVerified(ctx context.Context, actor *session.Identity, id string, verified bool) (*model.Account, error) {
	return s.adminMutate(ctx, actor, rbac.OpVerifyProfile, id, func(acc *model.Account) (string, error) {
		acc.ProfileVerified = verified
		return "", nil
	})
}

// InvalidateSessions отзывает все сессии чужой учётной записи.
func (s *AccountService) InvalidateSessions(ctx context.Context, actor *session.Identity, id string) (*model.Account, error) {
	return s.adminMutate(ctx, actor, rbac.OpInvalidateSessions, id, func(*model.Account) (string, error) {
		return reasonAdminRequest, nil
	})
}

// Delete удаляет учётную запись. Выданные ей токены перестают проходить проверку.
func (s *AccountService) Delete(ctx context.Context, actor *session.Identity, id string) error {
	if err := s.requireOp(actor, rbac.OpDeleteAccount); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	err := s.tx.InTx(ctx, func(repos *repository.Repositories) error {
		acc, err := repos.Accounts.GetByIDForUpdate(ctx, id)
		if err != nil {
			return mapRepoErr(err)
		}
		if err := s.authorizeTarget(actor, rbac.OpDeleteAccount, acc); err != nil {
			return err
		}
		return mapRepoErr(repos.Accounts.Delete(ctx, id))
	})
	if err != nil {
		return err
	}

	s.logger.Warn("Учётная запись удалена",
		slog.String("account_id", id),
		slog.String("actor_id", actor.AccountID),
	)
	return nil
}

// ProvisionAdmin создаёт учётную запись администратора с подтверждённым email.
func (s *AccountService) ProvisionAdmin(ctx context.Context, actor *session.Identity, name, email, pass string) (*model.Account, error) {
	if err := s.requireOp(actor, rbac.OpProvisionAdmin); err != nil {
		return nil, err
	}

	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	email, err = validateEmail(email)
	if err != nil {
		return nil, err
	}
	if s.isSuperAdminEmail(email) {
		return nil, ErrForbidden
	}
	if err := password.Validate(pass); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return nil, fmt.Errorf("хеширование пароля: %w", err)
	}

	now := s.now()
	acc := &model.Account{
		ID:              uuid.New().String(),
		Email:           email,
		Name:            name,
		PasswordHash:    &hash,
		Role:            model.RoleAdmin,
		EmailVerifiedAt: &now,
	}
	if err := s.repos.Accounts.Create(ctx, acc); err != nil {
		return nil, mapRepoErr(err)
	}

	s.logger.Info("Создана учётная запись администратора",
		slog.String("account_id", acc.ID),
		slog.String("actor_id", actor.AccountID),
	)
	return acc, nil
}

// EnsureSuperAdmin создаёт учётную запись супер-администратора при старте,
// если её нет. Email считается подтверждённым. Пустой pass создаёт запись
// без пароля: владелец задаёт его через сброс пароля.
//
// Существующая запись с неподтверждённым email не могла быть создана этим
// методом: её пароль удаляется, а выданные сессии отзываются.
func (s *AccountService) EnsureSuperAdmin(ctx context.Context, name, pass string) (*model.Account, error) {
	email := s.opts.SuperAdminEmail
	if email == "" {
		return nil, fmt.Errorf("%w: email супер-администратора не задан", ErrValidation)
	}
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}

	var hash *string
	if pass != "" {
		if err := password.Validate(pass); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		h, err := s.hasher.Hash(pass)
		if err != nil {
			return nil, fmt.Errorf("хеширование пароля: %w", err)
		}
		hash = &h
	}

	var result *model.Account
	err = s.tx.InTx(ctx, func(repos *repository.Repositories) error {
		acc, err := repos.Accounts.GetByEmail(ctx, email)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if acc == nil {
			now := s.now()
			acc = &model.Account{
				ID:              uuid.New().String(),
				Email:           email,
				Name:            name,
				PasswordHash:    hash,
				Role:            model.RoleAdmin,
				EmailVerifiedAt: &now,
			}
			if err := repos.Accounts.Create(ctx, acc); err != nil {
				return mapRepoErr(err)
			}
			s.logger.Info("Создана учётная запись супер-администратора",
				slog.String("account_id", acc.ID),
				slog.Bool("password_set", hash != nil),
			)
			result = acc
			return nil
		}

		if acc.IsEmailVerified() || !acc.HasPassword() {
			result = acc
			return nil
		}

		acc.PasswordHash = nil
		if err := repos.Accounts.Update(ctx, acc); err != nil {
			return mapRepoErr(err)
		}
		version, err := session.InvalidateAll(ctx, repos.Accounts, acc.ID, reasonPasswordReset, s.logger)
		if err != nil {
			return err
		}
		acc.SessionVersion = version
		s.logger.Warn("Неподтверждённая учётная запись с email супер-администратора: пароль удалён, сессии отозваны",
			slog.String("account_id", acc.ID),
		)
		result = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// --- Внутренние помощники ---

// requireOp проверяет минимальный уровень для операции до обращения к БД.
func (s *AccountService) requireOp(actor *session.Identity, op rbac.Operation) error {
	if actor == nil || !rbac.Can(actor.Tier, op, rbac.TierNone) {
		return ErrForbidden
	}
	return nil
}

// authorizeTarget проверяет операцию с учётом уровня целевой учётной записи.
func (s *AccountService) authorizeTarget(actor *session.Identity, op rbac.Operation, target *model.Account) error {
	if !rbac.Can(actor.Tier, op, s.TierOf(target)) {
		s.logger.Warn("Операция над учётной записью запрещена",
			slog.String("operation", string(op)),
			slog.String("actor_id", actor.AccountID),
			slog.String("target_id", target.ID),
		)
		return ErrForbidden
	}
	return nil
}

func (s *AccountService) adminMutate(
	ctx context.Context,
	actor *session.Identity,
	op rbac.Operation,
	id string,
	change func(acc *model.Account) (string, error),
) (*model.Account, error) {
	if err := s.requireOp(actor, op); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(target *model.Account) error {
		return s.authorizeTarget(actor, op, target)
	}, change)
}

// mutate изменяет учётную запись в транзакции: блокирует строку, проверяет
// права (authorize может быть nil), применяет change и сохраняет запись.
// Непустая причина, возвращённая change, отзывает все сессии в той же транзакции.
func (s *AccountService) mutate(
	ctx context.Context,
	id string,
	authorize func(target *model.Account) error,
	change func(acc *model.Account) (string, error),
) (*model.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var result *model.Account
	err := s.tx.InTx(ctx, func(repos *repository.Repositories) error {
		acc, err := repos.Accounts.GetByIDForUpdate(ctx, id)
		if err != nil {
			return mapRepoErr(err)
		}
		if authorize != nil {
			if err := authorize(acc); err != nil {
				return err
			}
		}

		reason, err := change(acc)
		if err != nil {
			return err
		}
		if err := repos.Accounts.Update(ctx, acc); err != nil {
			return mapRepoErr(err)
		}

		if reason != "" {
			version, err := session.InvalidateAll(ctx, repos.Accounts, acc.ID, reason, s.logger)
			if err != nil {
				return fmt.Errorf("инвалидация сессий: %w", err)
			}
			acc.SessionVersion = version
		}
		result = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyProfile применяет изменения профиля. Email супер-администратора
// нельзя ни присвоить, ни сменить: уровень доступа определяется адресом.
func (s *AccountService) applyProfile(acc *model.Account, upd ProfileUpdate) (changed, emailChanged bool, err error) {
	if upd.Name != nil {
		name, err := validateName(*upd.Name)
		if err != nil {
			return false, false, err
		}
		if name != acc.Name {
			acc.Name = name
			changed = true
		}
	}

	if upd.Email != nil {
		email, err := validateEmail(*upd.Email)
		if err != nil {
			return false, false, err
		}
		if email != normalizeEmail(acc.Email) {
			if s.isSuperAdminEmail(acc.Email) || s.isSuperAdminEmail(email) {
				return false, false, ErrForbidden
			}
			acc.Email = email
			if s.TierOf(acc) < rbac.TierAdmin {
				acc.EmailVerifiedAt = nil
			}
			changed, emailChanged = true, true
		}
	}
	return changed, emailChanged, nil
}

// afterEmailChange отправляет письмо подтверждения на новый неподтверждённый адрес.
// Изменение уже сохранено, поэтому сбой только логируется: письмо можно запросить повторно.
func (s *AccountService) afterEmailChange(ctx context.Context, acc *model.Account, emailChanged bool) {
	if !emailChanged || acc.IsEmailVerified() {
		return
	}
	if err := s.sendVerification(ctx, acc); err != nil {
		s.logger.Warn("Не удалось отправить письмо подтверждения нового email",
			slog.String("account_id", acc.ID),
			slog.String("error", err.Error()),
		)
	}
}

// consume погашает одноразовый токен.
func (s *AccountService) consume(ctx context.Context, purpose tokens.Purpose, token string) (*tokens.Claim, error) {
	return s.tokenClaim(ctx, purpose, token, true)
}

// tokenClaim читает данные токена; при consume токен погашается.
func (s *AccountService) tokenClaim(ctx context.Context, purpose tokens.Purpose, token string, consume bool) (*tokens.Claim, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	read := s.tokens.Peek
	if consume {
		read = s.tokens.Consume
	}
	claim, err := read(ctx, purpose, token)
	if err != nil {
		if errors.Is(err, tokens.ErrInvalidToken) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return claim, nil
}

// claimedAccount возвращает учётную запись, на которую выдан токен.
// Удалённая учётная запись и сменившийся email делают токен недействительным.
func (s *AccountService) claimedAccount(ctx context.Context, repos *repository.Repositories, claim *tokens.Claim) (*model.Account, error) {
	if _, err := uuid.Parse(claim.AccountID); err != nil {
		return nil, ErrInvalidToken
	}
	acc, err := repos.Accounts.GetByIDForUpdate(ctx, claim.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !strings.EqualFold(acc.Email, claim.Email) {
		return nil, ErrInvalidToken
	}
	return acc, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail проверяет адрес и приводит его к нижнему регистру.
func validateEmail(email string) (string, error) {
	email = normalizeEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || len(email) > 254 {
		return "", fmt.Errorf("%w: некорректный email", ErrValidation)
	}
	return email, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: имя не может быть пустым", ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", fmt.Errorf("%w: имя длиннее %d символов", ErrValidation, maxNameLength)
	}
	return name, nil
}
