// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrForbidden — недостаточно прав для операции.
	ErrForbidden = errors.New("недостаточно прав")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrInvalidRole — некорректная роль.
	ErrInvalidRole = errors.New("некорректная роль: допустимые значения — student, admin")
	// ErrInvalidToken — одноразовый токен недействителен, истёк или уже использован.
	ErrInvalidToken = errors.New("токен недействителен или истёк")
	// ErrWrongPassword — текущий пароль указан неверно.
	ErrWrongPassword = errors.New("текущий пароль указан неверно")
	// ErrNotificationUnavailable — не удалось поставить уведомление в очередь.
	ErrNotificationUnavailable = errors.New("сервис уведомлений недоступен")

	// ErrItemNotFound — позиция каталога не найдена или не опубликована.
	ErrItemNotFound = errors.New("позиция каталога не найдена")
	// ErrAlreadyGranted — доступ к позиции уже есть.
	ErrAlreadyGranted = errors.New("доступ к позиции уже предоставлен")
	// ErrAlreadyReviewed — заявка уже рассмотрена.
	ErrAlreadyReviewed = errors.New("заявка уже рассмотрена")
	// ErrInvalidState — операция недопустима в текущем статусе заявки.
	ErrInvalidState = errors.New("операция недопустима в текущем статусе")

	// ErrAccountFrozen — учётная запись заморожена. Проверяется как ErrForbidden.
	ErrAccountFrozen = fmt.Errorf("%w: учётная запись заморожена", ErrForbidden)
)
