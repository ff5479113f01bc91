package model

import "time"

// Статусы покупки ресурса.
const (
	ResourcePurchasePending   = "pending"
	ResourcePurchaseCompleted = "completed"
	ResourcePurchaseRefunded  = "refunded"
)

// Статусы и способы оплаты.
const (
	PaymentStatusCompleted = "completed"
	PaymentMethodTransfer  = "bank_transfer"
)

// Enrollment — зачисление на курс (доступ к курсу).
// Уникально по паре (user_id, course_id).
type Enrollment struct {
	ID         string
	UserID     string
	CourseID   string
	EnrolledAt time.Time
	// ExpiresAt — окончание доступа (nil — бессрочно)
	ExpiresAt *time.Time
}

// ResourcePurchase — покупка ресурса.
// Уникальна по паре (user_id, resource_id).
type ResourcePurchase struct {
	ID          string
	UserID      string
	ResourceID  string
	Amount      int64
	Currency    string
	Status      string
	PurchasedAt time.Time
}

// Payment — запись журнала платежей (только добавление).
// Ссылки обнуляются при удалении связанных записей, сама запись сохраняется.
type Payment struct {
	ID                string
	UserID            *string
	CourseID          *string
	PurchaseRequestID *string
	Amount            int64
	Currency          string
	Status            string
	Method            string
	CreatedAt         time.Time
}

// PaymentFilter — фильтр журнала платежей.
type PaymentFilter struct {
	UserID   *string
	CourseID *string
	Status   *string
}

// PaymentTotal — сумма завершённых платежей в одной валюте.
type PaymentTotal struct {
	Currency string
	Amount   int64
	Count    int
}

// AddMonths вычисляет окончание доступа: t + months календарных месяцев.
// nil months означает бессрочный доступ.
func AddMonths(t time.Time, months *int) *time.Time {
	if months == nil {
		return nil
	}
	exp := t.AddDate(0, *months, 0)
	return &exp
}
