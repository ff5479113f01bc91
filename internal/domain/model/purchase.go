package model

import "time"

// Статусы заявки на покупку.
const (
	PurchaseStatusPending  = "pending"
	PurchaseStatusApproved = "approved"
	PurchaseStatusRejected = "rejected"
)

// Действия администратора над заявкой.
const (
	ReviewApprove = "approve"
	ReviewReject  = "reject"
)

// PurchaseRequest — заявка пользователя на покупку курса или ресурса
// с оплатой переводом, ожидающая подтверждения администратором.
// Хранится в таблице purchase_requests.
type PurchaseRequest struct {
	ID     string
	UserID string
	// ItemType — course или resource
	ItemType string
	ItemID   string
	// ItemTitle, Amount, Currency — снимок позиции каталога на момент создания
	ItemTitle string
	Amount    int64
	Currency  string
	Message   *string
	Status    string
	AdminNote *string
	// ReviewedBy — UUID администратора (nil после удаления его учётной записи)
	ReviewedBy *string
	ReviewedAt *time.Time
	CreatedAt  time.Time
}

// PurchaseRequestFilter — фильтр списка заявок.
type PurchaseRequestFilter struct {
	Status   *string
	UserID   *string
	ItemType *string
}

// ReviewOutcome — результат рассмотрения заявки.
type ReviewOutcome struct {
	Request *PurchaseRequest
	// GrantCreated — в этой транзакции создан новый доступ (false — доступ уже был)
	GrantCreated bool
	// Payment — созданная запись платежа (только при новом зачислении на курс)
	Payment *Payment
}
