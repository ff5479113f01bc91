// purchases.go — обработчики заявок на покупку.
// /api/v1/purchase-requests — заявки вызывающего,
// /api/v1/admin/purchase-requests — рассмотрение и модерация.
package handlers

import (
	"net/http"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
)

// CreatePurchaseRequest — POST /api/v1/purchase-requests.
func (h *APIHandler) CreatePurchaseRequest(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}

	var req purchaseRequestCreate
	if !decodeJSON(w, r, &req) {
		return
	}

	pr, err := h.purchases.Create(r.Context(), identity.AccountID, req.ItemType, req.ItemID, req.Message)
	if err != nil {
		h.writeError(w, r, err, "Ошибка создания заявки")
		return
	}
	writeJSON(w, http.StatusCreated, mapPurchaseRequest(pr))
}

// ListMyPurchaseRequests — GET /api/v1/purchase-requests.
func (h *APIHandler) ListMyPurchaseRequests(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}

	items, total, err := h.purchases.ListMine(r.Context(), identity.AccountID, limit, offset)
	if err != nil {
		h.writeError(w, r, err, "Ошибка получения заявок")
		return
	}
	writeJSON(w, http.StatusOK, newList(items, total, limit, offset, mapPurchaseRequest))
}

// GetPurchaseRequest — GET /api/v1/purchase-requests/{id}.
// Студент видит только свои заявки, администратор — любые.
func (h *APIHandler) GetPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}
	id, ok := pathID(w, r, "Заявка")
	if !ok {
		return
	}

	pr, err := h.purchases.Get(r.Context(), identity, id)
	if err != nil {
		h.writeError(w, r, err, "Ошибка получения заявки")
		return
	}
	writeJSON(w, http.StatusOK, mapPurchaseRequest(pr))
}

// CancelPurchaseRequest — DELETE /api/v1/purchase-requests/{id}.
// Владелец отменяет свою ожидающую заявку.
func (h *APIHandler) CancelPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}
	id, ok := pathID(w, r, "Заявка")
	if !ok {
		return
	}

	if err := h.purchases.Cancel(r.Context(), identity.AccountID, id); err != nil {
		h.writeError(w, r, err, "Ошибка отмены заявки")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPurchaseRequests — GET /api/v1/admin/purchase-requests.
func (h *APIHandler) ListPurchaseRequests(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}

	var filter model.PurchaseRequestFilter
	if filter.Status, ok = optionalQuery(w, r, "status"); !ok {
		return
	}
	if filter.ItemType, ok = optionalQuery(w, r, "item_type"); !ok {
		return
	}
	if filter.UserID, ok = optionalQuery(w, r, "user_id"); !ok {
		return
	}

	items, total, err := h.purchases.List(r.Context(), identity, filter, limit, offset)
	if err != nil {
		h.writeError(w, r, err, "Ошибка получения заявок")
		return
	}
	writeJSON(w, http.StatusOK, newList(items, total, limit, offset, mapPurchaseRequest))
}

// ReviewPurchaseRequest — POST /api/v1/admin/purchase-requests/{id}/review.
// Одобрение выдаёт доступ и записывает платёж в одной транзакции.
func (h *APIHandler) ReviewPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}
	id, ok := pathID(w, r, "Заявка")
	if !ok {
		return
	}

	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	outcome, err := h.purchases.Review(r.Context(), identity, id, req.Action, req.Note)
	if err != nil {
		h.writeError(w, r, err, "Ошибка рассмотрения заявки")
		return
	}
	writeJSON(w, http.StatusOK, mapReview(outcome))
}

// DeletePurchaseRequest — DELETE /api/v1/admin/purchase-requests/{id}.
func (h *APIHandler) DeletePurchaseRequest(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}
	id, ok := pathID(w, r, "Заявка")
	if !ok {
		return
	}

	if err := h.purchases.Delete(r.Context(), identity, id); err != nil {
		h.writeError(w, r, err, "Ошибка удаления заявки")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
