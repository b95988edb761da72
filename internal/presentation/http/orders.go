package httppresentation

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/minishop-inventory/internal/application/cart"
	apporder "github.com/Zhima-Mochi/minishop-inventory/internal/application/order"
	domorder "github.com/Zhima-Mochi/minishop-inventory/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
)

type createOrderRequest struct {
	CustomerID      string           `json:"customer_id"`
	IdempotencyKey  string           `json:"idempotency_key"`
	CartHolderID    string           `json:"cart_holder_id"`
	Items           []cart.Line      `json:"items"`
	ShippingAddress domorder.Address `json:"shipping_address"`
	PaymentMethod   string           `json:"payment_method"`
}

type orderResponse struct {
	ID                 string                  `json:"id"`
	CustomerID         string                  `json:"customer_id"`
	Status             domorder.Status         `json:"status"`
	PaymentStatus      domorder.PaymentStatus  `json:"payment_status"`
	PaymentMethod      dompayment.Method       `json:"payment_method"`
	PaymentID          string                  `json:"payment_id,omitempty"`
	Lines              []domorder.Line         `json:"lines"`
	ShippingAddress    domorder.Address        `json:"shipping_address"`
	Subtotal           decimal.Decimal         `json:"subtotal"`
	Shipping           decimal.Decimal         `json:"shipping"`
	Tax                decimal.Decimal         `json:"tax"`
	Total              decimal.Decimal         `json:"total"`
	StatusHistory      []domorder.HistoryEntry `json:"status_history"`
	CancelledAt        *time.Time              `json:"cancelled_at,omitempty"`
	CancellationReason string                  `json:"cancellation_reason,omitempty"`
	NeedsReview        bool                    `json:"needs_review,omitempty"`
	ReviewReason       string                  `json:"review_reason,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

func newOrderResponse(o *domorder.Order) orderResponse {
	return orderResponse{
		ID:                 o.ID,
		CustomerID:         o.CustomerID,
		Status:             o.Status,
		PaymentStatus:      o.PaymentStatus,
		PaymentMethod:      o.PaymentMethod,
		PaymentID:          o.PaymentID,
		Lines:              o.Lines,
		ShippingAddress:    o.ShippingAddress,
		Subtotal:           o.Subtotal,
		Shipping:           o.Shipping,
		Tax:                o.Tax,
		Total:              o.Total,
		StatusHistory:      o.StatusHistory,
		CancelledAt:        o.CancelledAt,
		CancellationReason: o.CancellationReason,
		NeedsReview:        o.NeedsReview,
		ReviewReason:       o.ReviewReason,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

type createOrderResponse struct {
	Order    orderResponse    `json:"order"`
	Payment  *paymentResponse `json:"payment,omitempty"`
	Warnings []cart.Issue     `json:"warnings,omitempty"`
	Replayed bool             `json:"replayed,omitempty"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	result, err := h.svc.Orders.Create(r.Context(), apporder.CreateOrderInput{
		IdempotencyKey: req.IdempotencyKey,
		CustomerID:     req.CustomerID,
		CartHolderID:   req.CartHolderID,
		Lines:          req.Items,
		Address:        req.ShippingAddress,
		PaymentMethod:  dompayment.Method(req.PaymentMethod),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := createOrderResponse{
		Order:    newOrderResponse(result.Order),
		Warnings: result.Warnings,
		Replayed: result.Replayed,
	}
	if result.Payment != nil {
		p := newPaymentResponse(result.Payment)
		resp.Payment = &p
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	o, err := h.svc.Orders.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason, actor(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

type advanceOrderRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *Handler) handleAdvanceOrder(w http.ResponseWriter, r *http.Request) {
	var req advanceOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	o, err := h.svc.Orders.Advance(r.Context(), chi.URLParam(r, "id"), domorder.Status(req.Status), actor(r), req.Note)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}
