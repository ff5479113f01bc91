// Пакет model — доменные модели LMS Module.
package model

import "time"

// Роли, хранимые в таблице accounts.
// Супер-администратор в БД не хранится: он определяется по email из конфигурации.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Account — учётная запись пользователя.
// Хранится в таблице accounts.
type Account struct {
	// ID — UUID учётной записи
	ID string
	// Email — уникален без учёта регистра
	Email string
	// Name — отображаемое имя
	Name string
	// PasswordHash — хеш пароля в формате PHC (nil — вход по паролю невозможен)
	PasswordHash *string
	// Role — хранимая роль (student, admin)
	Role string
	// SessionVersion — монотонный счётчик; его увеличение отзывает все выданные токены
	SessionVersion int
	// EmailVerifiedAt — момент подтверждения email (nil — не подтверждён)
	EmailVerifiedAt *time.Time
	// Banned — учётная запись заблокирована
	Banned bool
	// BanReason — причина блокировки
	BanReason *string
	// BannedAt — момент блокировки
	BannedAt *time.Time
	// Frozen — учётная запись заморожена: вход разрешён, новые заявки на покупку запрещены
	Frozen bool
	// ProfileVerified — профиль студента проверен супер-администратором
	ProfileVerified bool
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// IsEmailVerified сообщает, подтверждён ли email.
func (a *Account) IsEmailVerified() bool {
	return a.EmailVerifiedAt != nil
}

// HasPassword сообщает, задан ли у учётной записи пароль.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// AccountFilter — фильтр списка учётных записей.
type AccountFilter struct {
	// Role — фильтр по хранимой роли
	Role *string
	// Banned — фильтр по блокировке
	Banned *bool
	// Search — подстрока email или имени (без учёта регистра)
	Search *string
}
