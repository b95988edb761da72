package httppresentation

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	apppayment "github.com/Zhima-Mochi/minishop-inventory/internal/application/payment"
	dompayment "github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
)

type refundResponse struct {
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	ProcessedAt time.Time       `json:"processed_at"`
}

type paymentResponse struct {
	ID            string            `json:"id"`
	OrderID       string            `json:"order_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Method        dompayment.Method `json:"method"`
	Status        dompayment.Status `json:"status"`
	GatewayRef    string            `json:"gateway_ref,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Refund        *refundResponse   `json:"refund,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func newPaymentResponse(p *dompayment.Payment) paymentResponse {
	resp := paymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		Amount:        p.Amount,
		Method:        p.Method,
		Status:        p.Status,
		GatewayRef:    p.GatewayRef,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.Refund != nil {
		resp.Refund = &refundResponse{Amount: p.Refund.Amount, Reason: p.Refund.Reason, ProcessedAt: p.Refund.ProcessedAt}
	}
	return resp
}

func (h *Handler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Payments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentResponse(p))
}

// paymentResultRequest is the gateway webhook body.
type paymentResultRequest struct {
	EventID    string `json:"event_id"`
	GatewayRef string `json:"gateway_ref"`
	Success    bool   `json:"success"`
	Reason     string `json:"reason"`
}

type paymentResultResponse struct {
	Payment   paymentResponse `json:"payment"`
	Order     *orderResponse  `json:"order,omitempty"`
	Duplicate bool            `json:"duplicate,omitempty"`
}

func (h *Handler) handleRecordPaymentResult(w http.ResponseWriter, r *http.Request) {
	var req paymentResultRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out, err := h.svc.Payments.RecordResult(r.Context(), apppayment.RecordResultInput{
		PaymentID:  chi.URLParam(r, "id"),
		EventID:    req.EventID,
		GatewayRef: req.GatewayRef,
		Success:    req.Success,
		Reason:     req.Reason,
		Actor:      r.Header.Get(headerUserID),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	resp := paymentResultResponse{Payment: newPaymentResponse(out.Payment), Duplicate: out.Duplicate}
	if out.Order != nil {
		o := newOrderResponse(out.Order)
		resp.Order = &o
	}
	writeJSON(w, http.StatusOK, resp)
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type refundResultResponse struct {
	Payment paymentResponse `json:"payment"`
	Order   *orderResponse  `json:"order,omitempty"`
}

func (h *Handler) handleRefundPayment(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out, err := h.svc.Payments.ProcessRefund(r.Context(), apppayment.RefundInput{
		PaymentID: chi.URLParam(r, "id"),
		Amount:    req.Amount,
		Reason:    req.Reason,
		Actor:     actor(r),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	resp := refundResultResponse{Payment: newPaymentResponse(out.Payment)}
	if out.Order != nil {
		o := newOrderResponse(out.Order)
		resp.Order = &o
	}
	writeJSON(w, http.StatusOK, resp)
}
