// payments.go — обработчики журнала платежей (только чтение).
package handlers

import (
	"net/http"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
)

// ListPayments — GET /api/v1/admin/payments.
func (h *APIHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}

	var filter model.PaymentFilter
	if filter.UserID, ok = optionalQuery(w, r, "user_id"); !ok {
		return
	}
	if filter.CourseID, ok = optionalQuery(w, r, "course_id"); !ok {
		return
	}
	if filter.Status, ok = optionalQuery(w, r, "status"); !ok {
		return
	}

	payments, total, err := h.payments.List(r.Context(), identity, filter, limit, offset)
	if err != nil {
		h.writeError(w, r, err, "Ошибка получения платежей")
		return
	}
	writeJSON(w, http.StatusOK, newList(payments, total, limit, offset, mapPayment))
}

// GetPaymentSummary — GET /api/v1/admin/payments/summary.
// Суммы завершённых платежей по валютам.
func (h *APIHandler) GetPaymentSummary(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}

	totals, err := h.payments.Summary(r.Context(), identity)
	if err != nil {
		h.writeError(w, r, err, "Ошибка расчёта сводки платежей")
		return
	}

	items := make([]paymentTotalResponse, len(totals))
	for i, t := range totals {
		items[i] = paymentTotalResponse{Currency: t.Currency, Amount: t.Amount, Count: t.Count}
	}
	writeJSON(w, http.StatusOK, map[string]any{"totals": items})
}
