package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
	"github.com/adhikarisumit/lms-module/internal/domain/rbac"
	"github.com/adhikarisumit/lms-module/internal/notify"
	"github.com/adhikarisumit/lms-module/internal/session"
)

func TestRegister_VerifyEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc, err := env.accounts.Register(ctx, "  Aiko  ", "Aiko@Example.com", testPassword)
	if err != nil {
		t.Fatalf("Register() ошибка: %v", err)
	}
	if acc.Email != "aiko@example.com" || acc.Name != "Aiko" {
		t.Errorf("Email/Name = %q/%q, ожидалось нормализованное значение", acc.Email, acc.Name)
	}
	if acc.Role != model.RoleStudent || acc.IsEmailVerified() {
		t.Errorf("новая учётная запись должна быть неподтверждённым студентом: %+v", acc)
	}

	// До подтверждения вход запрещён
	if _, err := env.authority.Authenticate(ctx, acc.Email, testPassword, ""); !errors.Is(err, session.ErrEmailNotVerified) {
		t.Fatalf("Authenticate() = %v, ожидалась ErrEmailNotVerified", err)
	}

	msg, ok := env.notifier.last(notify.KindEmailVerification)
	if !ok {
		t.Fatal("письмо подтверждения не отправлено")
	}
	if msg.To != acc.Email || msg.Data["token"] == "" {
		t.Errorf("письмо подтверждения = %+v", msg)
	}

	if err := env.accounts.VerifyEmail(ctx, msg.Data["token"]); err != nil {
		t.Fatalf("VerifyEmail() ошибка: %v", err)
	}
	if !env.account(t, acc.ID).IsEmailVerified() {
		t.Error("email должен быть подтверждён")
	}
	if _, err := env.authority.Authenticate(ctx, acc.Email, testPassword, ""); err != nil {
		t.Errorf("Authenticate() после подтверждения = %v", err)
	}

	// Токен одноразовый
	if err := env.accounts.VerifyEmail(ctx, msg.Data["token"]); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("повторный VerifyEmail() = %v, ожидалась ErrInvalidToken", err)
	}
}

// Регистрация откатывается, если письмо подтверждения не удалось поставить в очередь.
func TestRegister_RollbackOnNotificationFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.notifier.sendErr = errors.New("redis: connection refused")

	_, err := env.accounts.Register(ctx, "Aiko", "aiko@example.com", testPassword)
	if !errors.Is(err, ErrNotificationUnavailable) {
		t.Fatalf("Register() = %v, ожидалась ErrNotificationUnavailable", err)
	}

	if _, err := env.store.repos().Accounts.GetByEmail(ctx, "aiko@example.com"); err == nil {
		t.Error("учётная запись не должна сохраниться после отката")
	}

	// После восстановления очереди регистрация с тем же email проходит
	env.notifier.sendErr = nil
	if _, err := env.accounts.Register(ctx, "Aiko", "aiko@example.com", testPassword); err != nil {
		t.Errorf("повторная Register() = %v", err)
	}
}

// Сбой коммита не оставляет в очереди письма для несуществующей учётной записи.
func TestRegister_CommitFailureSendsNoEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	commitErr := errors.New("commit: connection lost")
	env.store.commitErr = commitErr

	if _, err := env.accounts.Register(ctx, "Aiko", "aiko@example.com", testPassword); !errors.Is(err, commitErr) {
		t.Fatalf("Register() = %v, ожидалась ошибка коммита", err)
	}
	if n := env.notifier.count(notify.KindEmailVerification); n != 0 {
		t.Errorf("отправлено писем подтверждения: %d, ожидалось 0", n)
	}
	if keys := env.redis.Keys(); len(keys) != 0 {
		t.Errorf("токены подтверждения не должны выдаваться, в Redis: %v", keys)
	}
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount(t, "taken@example.com", model.RoleStudent)

	tests := []struct {
		name     string
		userName string
		email    string
		password string
		wantErr  error
	}{
		{"пустое имя", "  ", "a@example.com", testPassword, ErrValidation},
		{"некорректный email", "A", "not-an-email", testPassword, ErrValidation},
		{"email с именем", "A", "Aiko <a@example.com>", testPassword, ErrValidation},
		{"короткий пароль", "A", "a@example.com", "short", ErrValidation},
		{"занятый email в другом регистре", "A", "TAKEN@example.com", testPassword, ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.accounts.Register(context.Background(), tt.userName, tt.email, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() = %v, ожидалась %v", err, tt.wantErr)
			}
		})
	}
}

func TestResendVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verified := env.addAccount(t, "verified@example.com", model.RoleStudent)

	if err := env.accounts.ResendVerification(ctx, "nobody@example.com"); err != nil {
		t.Errorf("ResendVerification(неизвестный) = %v, ожидался nil", err)
	}
	if err := env.accounts.ResendVerification(ctx, verified.Email); err != nil {
		t.Errorf("ResendVerification(подтверждённый) = %v, ожидался nil", err)
	}
	if n := env.notifier.count(notify.KindEmailVerification); n != 0 {
		t.Errorf("отправлено писем: %d, ожидалось 0", n)
	}
}

// После сброса пароля токен сброса не работает повторно, а прежние сессии отозваны.
func TestResetPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.addAccount(t, "student@example.com", model.RoleStudent)

	before, err := env.authority.Authenticate(ctx, acc.Email, testPassword, "")
	if err != nil {
		t.Fatalf("Authenticate() ошибка: %v", err)
	}

	if err := env.accounts.RequestPasswordReset(ctx, "STUDENT@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset() ошибка: %v", err)
	}
	msg, ok := env.notifier.last(notify.KindPasswordReset)
	if !ok {
		t.Fatal("письмо сброса пароля не отправлено")
	}
	token := msg.Data["token"]

	// Слабый пароль не погашает токен
	if err := env.accounts.ResetPassword(ctx, token, "short"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ResetPassword(слабый) = %v, ожидалась ErrValidation", err)
	}

	const newPassword = "brand-new-password"
	if err := env.accounts.ResetPassword(ctx, token, newPassword); err != nil {
		t.Fatalf("ResetPassword() ошибка: %v", err)
	}
	if err := env.accounts.ResetPassword(ctx, token, "another-password"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("повторный ResetPassword() = %v, ожидалась ErrInvalidToken", err)
	}

	if _, err := env.authority.Verify(ctx, before.Token); !errors.Is(err, session.ErrInvalidated) {
		t.Errorf("Verify(старый токен) = %v, ожидалась ErrInvalidated", err)
	}

	after, err := env.authority.Authenticate(ctx, acc.Email, newPassword, "")
	if err != nil {
		t.Fatalf("Authenticate(новый пароль) ошибка: %v", err)
	}
	if after.Identity.SessionVersion == before.Identity.SessionVersion {
		t.Error("токены до и после сброса должны нести разный session_version")
	}
	if _, err := env.authority.Verify(ctx, after.Token); err != nil {
		t.Errorf("Verify(новый токен) = %v", err)
	}
	if _, err := env.authority.Authenticate(ctx, acc.Email, testPassword, ""); !errors.Is(err, session.ErrInvalidCredentials) {
		t.Errorf("Authenticate(старый пароль) = %v, ожидалась ErrInvalidCredentials", err)
	}
}

// Сбой БД при сбросе пароля не погашает токен: повтор после восстановления проходит.
func TestResetPassword_TokenSurvivesStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.addAccount(t, "student@example.com", model.RoleStudent)

	if err := env.accounts.RequestPasswordReset(ctx, acc.Email); err != nil {
		t.Fatalf("RequestPasswordReset() ошибка: %v", err)
	}
	msg, ok := env.notifier.last(notify.KindPasswordReset)
	if !ok {
		t.Fatal("письмо сброса пароля не отправлено")
	}

	storageErr := errors.New("connection reset")
	env.store.accountUpdateErr = storageErr
	if err := env.accounts.ResetPassword(ctx, msg.Data["token"], "brand-new-password"); !errors.Is(err, storageErr) {
		t.Fatalf("ResetPassword() при сбое БД = %v, ожидалась ошибка хранилища", err)
	}
	if got := env.account(t, acc.ID); got.SessionVersion != acc.SessionVersion {
		t.Errorf("session_version = %d после отката, ожидался %d", got.SessionVersion, acc.SessionVersion)
	}

	env.store.accountUpdateErr = nil
	if err := env.accounts.ResetPassword(ctx, msg.Data["token"], "brand-new-password"); err != nil {
		t.Fatalf("повторный ResetPassword() ошибка: %v", err)
	}
	if _, err := env.authority.Authenticate(ctx, acc.Email, "brand-new-password", ""); err != nil {
		t.Errorf("Authenticate(новый пароль) = %v", err)
	}
	if err := env.accounts.ResetPassword(ctx, msg.Data["token"], "another-password"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ResetPassword() погашенным токеном = %v, ожидалась ErrInvalidToken", err)
	}
}

func TestRequestPasswordReset_NoEnumeration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.addAccount(t, "student@example.com", model.RoleStudent)

	if err := env.accounts.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
		t.Errorf("RequestPasswordReset(неизвестный) = %v, ожидался nil", err)
	}

	env.notifier.sendErr = errors.New("queue down")
	if err := env.accounts.RequestPasswordReset(ctx, acc.Email); err != nil {
		t.Errorf("RequestPasswordReset() при сбое очереди = %v, ожидался nil", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.addAccount(t, "student@example.com", model.RoleStudent)

	_, err := env.accounts.ChangePassword(ctx, acc.ID, "wrong-password", "brand-new-password")
	if !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("ChangePassword(неверный текущий) = %v, ожидалась ErrWrongPassword", err)
	}
	if v := env.account(t, acc.ID).SessionVersion; v != 0 {
		t.Errorf("SessionVersion после отказа = %d, ожидалось 0", v)
	}

	updated, err := env.accounts.ChangePassword(ctx, acc.ID, testPassword, "brand-new-password")
	if err != nil {
		t.Fatalf("ChangePassword() ошибка: %v", err)
	}
	if updated.SessionVersion != 1 || env.account(t, acc.ID).SessionVersion != 1 {
		t.Errorf("SessionVersion = %d, ожидалось 1", updated.SessionVersion)
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.addAccount(t, "student@example.com", model.RoleStudent)

	t.Run("без изменений", func(t *testing.T) {
		same := acc.Name
		updated, err := env.accounts.UpdateProfile(ctx, acc.ID, ProfileUpdate{Name: &same})
		if err != nil {
			t.Fatalf("UpdateProfile() ошибка: %v", err)
		}
		if updated.SessionVersion != 0 {
			t.Errorf("SessionVersion = %d, без изменений сессии не отзываются", updated.SessionVersion)
		}
	})

	t.Run("смена email", func(t *testing.T) {
		updated, err := env.accounts.UpdateProfile(ctx, acc.ID, ProfileUpdate{Email: strPtr("New@Example.com")})
		if err != nil {
			t.Fatalf("UpdateProfile() ошибка: %v", err)
		}
		if updated.Email != "new@example.com" {
			t.Errorf("Email = %q", updated.Email)
		}
		if updated.IsEmailVerified() {
			t.Error("новый email студента должен требовать подтверждения")
		}
		if updated.SessionVersion != 1 {
			t.Errorf("SessionVersion = %d, ожидалось 1", updated.SessionVersion)
		}
		msg, ok := env.notifier.last(notify.KindEmailVerification)
		if !ok || msg.To != "new@example.com" {
			t.Errorf("письмо подтверждения нового адреса = %+v", msg)
		}
	})

	t.Run("присвоение email супер-администратора", func(t *testing.T) {
		_, err := env.accounts.UpdateProfile(ctx, acc.ID, ProfileUpdate{Email: strPtr(testSuperEmail)})
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("UpdateProfile() = %v, ожидалась ErrForbidden", err)
		}
	})
}

// Токен подтверждения, выданный на прежний адрес, не подтверждает новый.
func TestVerifyEmail_StaleAfterEmailChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc, err := env.accounts.Register(ctx, "Aiko", "aiko@example.com", testPassword)
	if err != nil {
		t.Fatalf("Register() ошибка: %v", err)
	}
	msg, _ := env.notifier.last(notify.KindEmailVerification)

	if _, err := env.accounts.UpdateProfile(ctx, acc.ID, ProfileUpdate{Email: strPtr("other@example.com")}); err != nil {
		t.Fatalf("UpdateProfile() ошибка: %v", err)
	}
	if err := env.accounts.VerifyEmail(ctx, msg.Data["token"]); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyEmail(старый токен) = %v, ожидалась ErrInvalidToken", err)
	}
}

// Супер-администратор не может быть целью административной операции, кто бы её ни выполнял.
func TestSuperAdminIsNeverTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	super := env.addAccount(t, testSuperEmail, model.RoleStudent)
	admin := env.addAccount(t, "admin@example.com", model.RoleAdmin)

	actors := map[string]*session.Identity{
		"admin":       env.identity(admin),
		"super-admin": env.identity(super),
	}

	for name, actor := range actors {
		t.Run(name, func(t *testing.T) {
			ops := map[string]func() error{
				"ban": func() error {
					_, err := env.accounts.Ban(ctx, actor, super.ID, "test")
					return err
				},
				"freeze": func() error {
					_, err := env.accounts.Freeze(ctx, actor, super.ID)
					return err
				},
				"edit": func() error {
					_, err := env.accounts.AdminUpdateProfile(ctx, actor, super.ID, ProfileUpdate{Name: strPtr("X")})
					return err
				},
				"set-role": func() error {
					_, err := env.accounts.SetRole(ctx, actor, super.ID, model.RoleAdmin)
					return err
				},
				"delete": func() error {
					return env.accounts.Delete(ctx, actor, super.ID)
				},
			}
			for op, fn := range ops {
				if err := fn(); !errors.Is(err, ErrForbidden) {
					t.Errorf("%s над супер-администратором = %v, ожидалась ErrForbidden", op, err)
				}
			}
		})
	}

	got := env.account(t, super.ID)
	if got.Banned || got.Frozen || got.Name != super.Name || got.SessionVersion != 0 {
		t.Errorf("учётная запись супер-администратора изменена: %+v", got)
	}
}

// Email супер-администратора нельзя занять регистрацией: иначе первый
// зарегистрировавшийся получил бы права без подтверждения адреса.
func TestRegister_SuperAdminEmailForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, email := range []string{testSuperEmail, "OWNER@Example.com"} {
		if _, err := env.accounts.Register(ctx, "Mallory", email, testPassword); !errors.Is(err, ErrForbidden) {
			t.Errorf("Register(%q) = %v, ожидалась ErrForbidden", email, err)
		}
	}
	if env.notifier.count(notify.KindEmailVerification) != 0 {
		t.Error("письмо подтверждения не должно отправляться")
	}
	if _, err := env.authority.Authenticate(ctx, testSuperEmail, testPassword, ""); !errors.Is(err, session.ErrInvalidCredentials) {
		t.Errorf("Authenticate(email супер-администратора) = %v, ожидалась ErrInvalidCredentials", err)
	}
}

func TestEnsureSuperAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc, err := env.accounts.EnsureSuperAdmin(ctx, "Owner", testPassword)
	if err != nil {
		t.Fatalf("EnsureSuperAdmin() ошибка: %v", err)
	}
	if !acc.IsEmailVerified() || acc.Email != testSuperEmail {
		t.Errorf("учётная запись = %+v, ожидался подтверждённый %s", acc, testSuperEmail)
	}

	cred, err := env.authority.Authenticate(ctx, testSuperEmail, testPassword, "")
	if err != nil {
		t.Fatalf("Authenticate() ошибка: %v", err)
	}
	if cred.Identity.Tier != rbac.TierSuperAdmin {
		t.Errorf("Tier = %v, ожидался super-admin", cred.Identity.Tier)
	}

	// Повторный запуск ничего не меняет и сессии не отзывает
	again, err := env.accounts.EnsureSuperAdmin(ctx, "Other", "other-password-123")
	if err != nil {
		t.Fatalf("повторный EnsureSuperAdmin() ошибка: %v", err)
	}
	if again.ID != acc.ID || again.Name != "Owner" {
		t.Errorf("повторный вызов изменил учётную запись: %+v", again)
	}
	if _, err := env.authority.Verify(ctx, cred.Token); err != nil {
		t.Errorf("Verify() после повторного вызова = %v", err)
	}
}

func TestEnsureSuperAdmin_WithoutPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc, err := env.accounts.EnsureSuperAdmin(ctx, "Owner", "")
	if err != nil {
		t.Fatalf("EnsureSuperAdmin() ошибка: %v", err)
	}
	if acc.HasPassword() {
		t.Error("без пароля в конфигурации учётная запись создаётся без пароля")
	}

	if err := env.accounts.RequestPasswordReset(ctx, testSuperEmail); err != nil {
		t.Fatalf("RequestPasswordReset() ошибка: %v", err)
	}
	msg, ok := env.notifier.last(notify.KindPasswordReset)
	if !ok {
		t.Fatal("письмо сброса пароля не отправлено")
	}
	if err := env.accounts.ResetPassword(ctx, msg.Data["token"], testPassword); err != nil {
		t.Fatalf("ResetPassword() ошибка: %v", err)
	}
	if _, err := env.authority.Authenticate(ctx, testSuperEmail, testPassword, ""); err != nil {
		t.Errorf("Authenticate() после сброса = %v", err)
	}
}

// Неподтверждённая запись с email супер-администратора (созданная до запрета
// регистрации) теряет пароль и сессии при старте.
func TestEnsureSuperAdmin_ScrubsUnverifiedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hash, err := env.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash() ошибка: %v", err)
	}
	squatter := &model.Account{
		ID:           uuid.New().String(),
		Email:        testSuperEmail,
		Name:         "Mallory",
		PasswordHash: &hash,
		Role:         model.RoleStudent,
	}
	if err := env.store.repos().Accounts.Create(ctx, squatter); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	cred, err := env.authority.Authenticate(ctx, testSuperEmail, testPassword, "")
	if err != nil {
		t.Fatalf("Authenticate() ошибка: %v", err)
	}

	if _, err := env.accounts.EnsureSuperAdmin(ctx, "Owner", ""); err != nil {
		t.Fatalf("EnsureSuperAdmin() ошибка: %v", err)
	}

	if _, err := env.authority.Verify(ctx, cred.Token); !errors.Is(err, session.ErrInvalidated) {
		t.Errorf("Verify(токен захватчика) = %v, ожидалась ErrInvalidated", err)
	}
	if _, err := env.authority.Authenticate(ctx, testSuperEmail, testPassword, ""); !errors.Is(err, session.ErrInvalidCredentials) {
		t.Errorf("Authenticate(пароль захватчика) = %v, ожидалась ErrInvalidCredentials", err)
	}
	if got := env.account(t, squatter.ID); got.HasPassword() {
		t.Error("пароль неподтверждённой записи должен быть удалён")
	}
}

func TestAdminTargetRequiresSuperAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	super := env.addAccount(t, testSuperEmail, model.RoleStudent)
	admin := env.addAccount(t, "admin@example.com", model.RoleAdmin)
	other := env.addAccount(t, "other-admin@example.com", model.RoleAdmin)

	if _, err := env.accounts.Ban(ctx, env.identity(admin), other.ID, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("Ban(admin → admin) = %v, ожидалась ErrForbidden", err)
	}
	if err := env.accounts.Delete(ctx, env.identity(admin), other.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Delete(admin → admin) = %v, ожидалась ErrForbidden", err)
	}
	if _, err := env.accounts.Ban(ctx, env.identity(super), other.ID, ""); err != nil {
		t.Errorf("Ban(super → admin) = %v, ожидался nil", err)
	}
}

func TestBan_InvalidatesSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.addAccount(t, "admin@example.com", model.RoleAdmin)
	student := env.addAccount(t, "student@example.com", model.RoleStudent)

	cred, err := env.authority.Authenticate(ctx, student.Email, testPassword, "")
	if err != nil {
		t.Fatalf("Authenticate() ошибка: %v", err)
	}

	banned, err := env.accounts.Ban(ctx, env.identity(admin), student.ID, "  spam  ")
	if err != nil {
		t.Fatalf("Ban() ошибка: %v", err)
	}
	if !banned.Banned || banned.BannedAt == nil || banned.BanReason == nil || *banned.BanReason != "spam" {
		t.Errorf("после Ban() = %+v", banned)
	}
	if banned.SessionVersion != 1 {
		t.Errorf("SessionVersion = %d, ожидалось 1", banned.SessionVersion)
	}

	if _, err := env.authority.Verify(ctx, cred.Token); !errors.Is(err, session.ErrInvalidated) {
		t.Errorf("Verify() после блокировки = %v, ожидалась ErrInvalidated", err)
	}
	if _, err := env.authority.Authenticate(ctx, student.Email, testPassword, ""); !errors.Is(err, session.ErrBanned) {
		t.Errorf("Authenticate() после блокировки = %v, ожидалась ErrBanned", err)
	}

	unbanned, err := env.accounts.Unban(ctx, env.identity(admin), student.ID)
	if err != nil {
		t.Fatalf("Unban() ошибка: %v", err)
	}
	if unbanned.Banned || unbanned.BanReason != nil || unbanned.BannedAt != nil {
		t.Errorf("после Unban() = %+v", unbanned)
	}
}

func TestFreeze_KeepsSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.addAccount(t, "admin@example.com", model.RoleAdmin)
	student := env.addAccount(t, "student@example.com", model.RoleStudent)

	frozen, err := env.accounts.Freeze(ctx, env.identity(admin), student.ID)
	if err != nil {
		t.Fatalf("Freeze() ошибка: %v", err)
	}
	if !frozen.Frozen || frozen.SessionVersion != 0 {
		t.Errorf("после Freeze() = %+v", frozen)
	}
	if _, err := env.authority.Authenticate(ctx, student.Email, testPassword, ""); err != nil {
		t.Errorf("замороженная учётная запись должна входить: %v", err)
	}
}

func TestAdminOperations_Permissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	super := env.addAccount(t, testSuperEmail, model.RoleStudent)
	admin := env.addAccount(t, "admin@example.com", model.RoleAdmin)
	student := env.addAccount(t, "student@example.com", model.RoleStudent)
	other := env.addAccount(t, "other@example.com", model.RoleStudent)

	if _, err := env.accounts.Ban(ctx, env.identity(student), other.ID, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("Ban(student) = %v, ожидалась ErrForbidden", err)
	}
	if _, _, err := env.accounts.ListAccounts(ctx, env.identity(student), model.AccountFilter{}, 10, 0); !errors.Is(err, ErrForbidden) {
		t.Errorf("ListAccounts(student) = %v, ожидалась ErrForbidden", err)
	}
	if _, err := env.accounts.SetRole(ctx, env.identity(admin), other.ID, model.RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Errorf("SetRole(admin) = %v, ожидалась ErrForbidden", err)
	}
	if _, err := env.accounts.SetProfileVerified(ctx, env.identity(admin), other.ID, true); !errors.Is(err, ErrForbidden) {
		t.Errorf("SetProfileVerified(admin) = %v, ожидалась ErrForbidden", err)
	}
	if _, err := env.accounts.SetRole(ctx, env.identity(super), other.ID, "owner"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("SetRole(owner) = %v, ожидалась ErrInvalidRole", err)
	}
	if _, err := env.accounts.Ban(ctx, env.identity(admin), "not-a-uuid", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Ban(not-a-uuid) = %v, ожидалась ErrNotFound", err)
	}

	promoted, err := env.accounts.SetRole(ctx, env.identity(super), other.ID, model.RoleAdmin)
	if err != nil {
		t.Fatalf("SetRole() ошибка: %v", err)
	}
	if promoted.Role != model.RoleAdmin || promoted.SessionVersion != 1 {
		t.Errorf("после SetRole() = %+v", promoted)
	}

	verified, err := env.accounts.SetProfileVerified(ctx, env.identity(super), student.ID, true)
	if err != nil {
		t.Fatalf("SetProfileVerified() ошибка: %v", err)
	}
	if !verified.ProfileVerified {
		t.Error("профиль должен быть отмечен проверенным")
	}

	accounts, total, err := env.accounts.ListAccounts(ctx, env.identity(admin), model.AccountFilter{Role: strPtr(model.RoleAdmin)}, 10, 0)
	if err != nil {
		t.Fatalf("ListAccounts() ошибка: %v", err)
	}
	if total != 2 || len(accounts) != 2 {
		t.Errorf("ListAccounts(role=admin) = %d/%d, ожидалось 2", len(accounts), total)
	}
}

func TestProvisionAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	super := env.addAccount(t, testSuperEmail, model.RoleStudent)
	admin := env.addAccount(t, "admin@example.com", model.RoleAdmin)

	if _, err := env.accounts.ProvisionAdmin(ctx, env.identity(admin), "New", "new-admin@example.com", testPassword); !errors.Is(err, ErrForbidden) {
		t.Errorf("ProvisionAdmin(admin) = %v, ожидалась ErrForbidden", err)
	}

	created, err := env.accounts.ProvisionAdmin(ctx, env.identity(super), "New", "new-admin@example.com", testPassword)
	if err != nil {
		t.Fatalf("ProvisionAdmin() ошибка: %v", err)
	}
	if created.Role != model.RoleAdmin || !created.IsEmailVerified() {
		t.Errorf("созданный администратор = %+v", created)
	}
	if _, err := env.authority.Authenticate(ctx, created.Email, testPassword, ""); err != nil {
		t.Errorf("Authenticate(новый администратор) = %v", err)
	}
}

func TestDelete_InvalidatesSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.addAccount(t, "admin@example.com", model.RoleAdmin)
	student := env.addAccount(t, "student@example.com", model.RoleStudent)

	cred, err := env.authority.Authenticate(ctx, student.Email, testPassword, "")
	if err != nil {
		t.Fatalf("Authenticate() ошибка: %v", err)
	}

	if err := env.accounts.Delete(ctx, env.identity(admin), student.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := env.authority.Verify(ctx, cred.Token); !errors.Is(err, session.ErrInvalidated) {
		t.Errorf("Verify() удалённой учётной записи = %v, ожидалась ErrInvalidated", err)
	}
	if err := env.accounts.Delete(ctx, env.identity(admin), student.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete() = %v, ожидалась ErrNotFound", err)
	}
}

func TestSignOutEverywhere(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addAccount(t, "student@example.com", model.RoleStudent)

	first, _ := env.authority.Authenticate(ctx, student.Email, testPassword, "")
	second, _ := env.authority.Authenticate(ctx, student.Email, testPassword, "")

	version, err := env.accounts.SignOutEverywhere(ctx, student.ID)
	if err != nil {
		t.Fatalf("SignOutEverywhere() ошибка: %v", err)
	}
	if version != 1 {
		t.Errorf("SignOutEverywhere() = %d, ожидалось 1", version)
	}
	for _, cred := range []*session.Credential{first, second} {
		if _, err := env.authority.Verify(ctx, cred.Token); !errors.Is(err, session.ErrInvalidated) {
			t.Errorf("Verify() = %v, ожидалась ErrInvalidated", err)
		}
	}
}
