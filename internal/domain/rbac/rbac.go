// Пакет rbac — уровни доступа и политика авторизации LMS Module.
//
// Уровни: student < admin < super-admin. Супер-администратор не хранится
// в БД: это учётная запись, чей email совпадает с настроенным адресом.
// Права каждой операции заданы явно таблицей requiredTier, а операции
// над другой учётной записью дополнительно учитывают уровень цели.
package rbac

import (
	"strings"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
)

// Tier — уровень доступа учётной записи.
type Tier int

// Уровни в порядке возрастания привилегий.
const (
	TierNone Tier = iota
	TierStudent
	TierAdmin
	TierSuperAdmin
)

// Имена уровней в токенах и ответах API.
const (
	NameStudent    = "student"
	NameAdmin      = "admin"
	NameSuperAdmin = "super-admin"
)

// String возвращает имя уровня.
func (t Tier) String() string {
	switch t {
	case TierStudent:
		return NameStudent
	case TierAdmin:
		return NameAdmin
	case TierSuperAdmin:
		return NameSuperAdmin
	default:
		return ""
	}
}

// ParseTier преобразует имя уровня в Tier. Неизвестное имя — TierNone.
func ParseTier(name string) Tier {
	switch name {
	case NameStudent:
		return TierStudent
	case NameAdmin:
		return TierAdmin
	case NameSuperAdmin:
		return TierSuperAdmin
	default:
		return TierNone
	}
}

// AtLeast сообщает, не ниже ли уровень t уровня min.
func (t Tier) AtLeast(min Tier) bool {
	return t >= min
}

// ResolveTier вычисляет уровень доступа по хранимой роли и email.
// Совпадение email с superAdminEmail (без учёта регистра) даёт super-admin
// независимо от хранимой роли. Пустой superAdminEmail ни с чем не совпадает.
func ResolveTier(role, email, superAdminEmail string) Tier {
	superAdminEmail = strings.TrimSpace(superAdminEmail)
	if superAdminEmail != "" && strings.EqualFold(strings.TrimSpace(email), superAdminEmail) {
		return TierSuperAdmin
	}
	switch role {
	case model.RoleAdmin:
		return TierAdmin
	case model.RoleStudent:
		return TierStudent
	default:
		return TierNone
	}
}

// IsValidRole проверяет, является ли строка допустимой хранимой ролью.
func IsValidRole(role string) bool {
	return role == model.RoleStudent || role == model.RoleAdmin
}

// Operation — операция, требующая авторизации.
type Operation string

// Операции администрирования.
const (
	OpListAccounts       Operation = "accounts:list"
	OpBanAccount         Operation = "accounts:ban"
	OpUnbanAccount       Operation = "accounts:unban"
	OpFreezeAccount      Operation = "accounts:freeze"
	OpUnfreezeAccount    Operation = "accounts:unfreeze"
	OpEditAccount        Operation = "accounts:edit"
	OpDeleteAccount      Operation = "accounts:delete"
	OpInvalidateSessions Operation = "accounts:invalidate-sessions"
	OpSetRole            Operation = "accounts:set-role"
	OpProvisionAdmin     Operation = "accounts:provision-admin"
	OpVerifyProfile      Operation = "accounts:verify-profile"

	OpListPurchases  Operation = "purchases:list"
	OpReviewPurchase Operation = "purchases:review"
	OpDeletePurchase Operation = "purchases:delete"

	OpManageCatalog Operation = "catalog:manage"
	OpViewPayments  Operation = "payments:view"
)

// requiredTier — минимальный уровень для каждой операции.
// Часть операций намеренно доступна admin, часть — только super-admin.
var requiredTier = map[Operation]Tier{
	OpListAccounts:       TierAdmin,
	OpBanAccount:         TierAdmin,
	OpUnbanAccount:       TierAdmin,
	OpFreezeAccount:      TierAdmin,
	OpUnfreezeAccount:    TierAdmin,
	OpEditAccount:        TierAdmin,
	OpDeleteAccount:      TierAdmin,
	OpInvalidateSessions: TierAdmin,
	OpSetRole:            TierSuperAdmin,
	OpProvisionAdmin:     TierSuperAdmin,
	OpVerifyProfile:      TierSuperAdmin,

	OpListPurchases:  TierAdmin,
	OpReviewPurchase: TierAdmin,
	OpDeletePurchase: TierAdmin,

	OpManageCatalog: TierAdmin,
	OpViewPayments:  TierAdmin,
}

// targeted — операции над чужой учётной записью.
// Для них уровень цели ограничивает круг допустимых исполнителей:
// цель admin — только super-admin, цель super-admin — никто.
var targeted = map[Operation]bool{
	OpBanAccount:         true,
	OpUnbanAccount:       true,
	OpFreezeAccount:      true,
	OpUnfreezeAccount:    true,
	OpEditAccount:        true,
	OpDeleteAccount:      true,
	OpInvalidateSessions: true,
	OpSetRole:            true,
	OpVerifyProfile:      true,
}

// IsTargeted сообщает, применяется ли операция к другой учётной записи.
func IsTargeted(op Operation) bool {
	return targeted[op]
}

// Required возвращает минимальный уровень операции (TierNone — операция неизвестна).
func Required(op Operation) Tier {
	return requiredTier[op]
}

// Can проверяет, может ли исполнитель уровня actor выполнить операцию op
// над учётной записью уровня target. Для нецелевых операций target игнорируется.
func Can(actor Tier, op Operation, target Tier) bool {
	required, ok := requiredTier[op]
	if !ok || actor < required {
		return false
	}
	if !targeted[op] {
		return true
	}

	switch target {
	case TierSuperAdmin:
		// Супер-администратора нельзя заблокировать, заморозить, изменить
		// или удалить, в том числе ему самому.
		return false
	case TierAdmin:
		return actor == TierSuperAdmin
	default:
		return true
	}
}
