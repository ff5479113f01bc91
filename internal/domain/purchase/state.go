// Пакет purchase — конечный автомат статусов заявки на покупку.
//
// Жизненный цикл: pending → approved | rejected.
// approved и rejected — конечные статусы; выйти из них можно только
// удалением заявки администратором. Отмена заявки заявителем возможна
// только из pending и реализуется удалением.
package purchase

import (
	"fmt"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
)

// validTransitions — матрица допустимых переходов.
// Ключ — текущий статус, значение — набор допустимых целевых статусов.
var validTransitions = map[string]map[string]bool{
	model.PurchaseStatusPending:  {model.PurchaseStatusApproved: true, model.PurchaseStatusRejected: true},
	model.PurchaseStatusApproved: {}, // Конечный статус
	model.PurchaseStatusRejected: {}, // Конечный статус
}

// actionTargets — целевой статус для каждого действия администратора.
var actionTargets = map[string]string{
	model.ReviewApprove: model.PurchaseStatusApproved,
	model.ReviewReject:  model.PurchaseStatusRejected,
}

// TransitionError — ошибка недопустимого перехода статуса.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("недопустимый переход статуса заявки: %s → %s", e.From, e.To)
}

// IsValidStatus проверяет, является ли строка допустимым статусом заявки.
func IsValidStatus(status string) bool {
	_, ok := validTransitions[status]
	return ok
}

// IsValidAction проверяет действие администратора (approve, reject).
func IsValidAction(action string) bool {
	_, ok := actionTargets[action]
	return ok
}

// IsTerminal сообщает, является ли статус конечным.
func IsTerminal(status string) bool {
	transitions, ok := validTransitions[status]
	return ok && len(transitions) == 0
}

// CanCancel сообщает, может ли заявитель отменить заявку в данном статусе.
func CanCancel(status string) bool {
	return status == model.PurchaseStatusPending
}

// Transition возвращает новый статус заявки после действия администратора.
// Ошибка *TransitionError означает, что заявка уже рассмотрена.
func Transition(current, action string) (string, error) {
	target, ok := actionTargets[action]
	if !ok {
		return "", fmt.Errorf("недопустимое действие: %q", action)
	}
	if !validTransitions[current][target] {
		return "", &TransitionError{From: current, To: target}
	}
	return target, nil
}
