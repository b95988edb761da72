package httppresentation

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/minishop-inventory/internal/application/cart"
	appinventory "github.com/Zhima-Mochi/minishop-inventory/internal/application/inventory"
	domcatalog "github.com/Zhima-Mochi/minishop-inventory/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
)

type ledgerResponse struct {
	ProductID        string    `json:"product_id"`
	QuantityOnHand   int       `json:"quantity_on_hand"`
	QuantityReserved int       `json:"quantity_reserved"`
	QuantityLocked   int       `json:"quantity_locked"`
	AvailableForSale int       `json:"available_for_sale"`
	ReorderLevel     int       `json:"reorder_level"`
	MaxStockLevel    int       `json:"max_stock_level"`
	Version          int64     `json:"version"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func newLedgerResponse(l *dominv.Ledger) ledgerResponse {
	return ledgerResponse{
		ProductID:        l.ProductID,
		QuantityOnHand:   l.QuantityOnHand,
		QuantityReserved: l.QuantityReserved,
		QuantityLocked:   l.QuantityLocked,
		AvailableForSale: l.Availability().AvailableForSale,
		ReorderLevel:     l.ReorderLevel,
		MaxStockLevel:    l.MaxStockLevel,
		Version:          l.Version,
		UpdatedAt:        l.UpdatedAt,
	}
}

type reservationResponse struct {
	ID        string                  `json:"id"`
	ProductID string                  `json:"product_id"`
	Quantity  int                     `json:"quantity"`
	HolderID  string                  `json:"holder_id"`
	Reason    dominv.Reason           `json:"reason"`
	State     dominv.ReservationState `json:"state"`
	ExpiresAt *time.Time              `json:"expires_at,omitempty"`
}

func newReservationResponse(r *dominv.Reservation) reservationResponse {
	return reservationResponse{
		ID:        r.ID,
		ProductID: r.ProductID,
		Quantity:  r.Quantity,
		HolderID:  r.HolderID,
		Reason:    r.Reason,
		State:     r.State,
		ExpiresAt: r.ExpiresAt,
	}
}

type validateCartRequest struct {
	Items []cart.Line `json:"items"`
}

func (h *Handler) handleValidateCart(w http.ResponseWriter, r *http.Request) {
	var req validateCartRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	result, err := h.svc.Cart.Validate(r.Context(), req.Items)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type placeHoldRequest struct {
	HolderID  string `json:"holder_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) handlePlaceHold(w http.ResponseWriter, r *http.Request) {
	var req placeHoldRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if req.HolderID == "" {
		req.HolderID = r.Header.Get(headerUserID)
	}
	res, err := h.svc.Stock.Reserve(r.Context(), appinventory.ReserveRequest{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		HolderID:  req.HolderID,
		Reason:    dominv.ReasonCart,
		TTL:       h.svc.CartHoldTTL,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReservationResponse(res))
}

// handleReleaseHold only releases cart holds; checkout reservations belong to their order.
func (h *Handler) handleReleaseHold(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.svc.Stock.Reservation(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if res.Reason != dominv.ReasonCart {
		h.writeDomainError(w, r, shared.NewNotFoundError("cart hold", id))
		return
	}
	res, err = h.svc.Stock.Release(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationResponse(res))
}

type registerProductRequest struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	InitialStock  int             `json:"initial_stock"`
	ReorderLevel  int             `json:"reorder_level"`
	MaxStockLevel int             `json:"max_stock_level"`
}

type registerProductResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Active       bool            `json:"active"`
	Stock        ledgerResponse  `json:"stock"`
}

func (h *Handler) handleRegisterProduct(w http.ResponseWriter, r *http.Request) {
	var req registerProductRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	p, err := domcatalog.NewProduct(req.ID, req.Name, req.SellingPrice)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	// The ledger goes first so a duplicate registration never overwrites the catalog entry.
	l, err := h.svc.Stock.RegisterLedger(r.Context(), p.ID, req.InitialStock, req.ReorderLevel, req.MaxStockLevel)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.svc.Catalog.Save(r.Context(), p); err != nil {
		h.writeDomainError(w, r, fmt.Errorf("catalog: save product: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, registerProductResponse{
		ID:           p.ID,
		Name:         p.Name,
		SellingPrice: p.SellingPrice,
		Active:       p.Active,
		Stock:        newLedgerResponse(l),
	})
}

type stockChangeRequest struct {
	Delta    int    `json:"delta"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

func (h *Handler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	h.changeStock(w, r, func(productID string, req stockChangeRequest) (*dominv.Ledger, error) {
		return h.svc.Stock.AdjustStock(r.Context(), productID, req.Delta, req.Reason)
	})
}

func (h *Handler) handleLockStock(w http.ResponseWriter, r *http.Request) {
	h.changeStock(w, r, func(productID string, req stockChangeRequest) (*dominv.Ledger, error) {
		return h.svc.Stock.Lock(r.Context(), productID, req.Quantity, req.Reason)
	})
}

func (h *Handler) handleUnlockStock(w http.ResponseWriter, r *http.Request) {
	h.changeStock(w, r, func(productID string, req stockChangeRequest) (*dominv.Ledger, error) {
		return h.svc.Stock.Unlock(r.Context(), productID, req.Quantity, req.Reason)
	})
}

func (h *Handler) changeStock(w http.ResponseWriter, r *http.Request, apply func(string, stockChangeRequest) (*dominv.Ledger, error)) {
	var req stockChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	l, err := apply(chi.URLParam(r, "productID"), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLedgerResponse(l))
}

func (h *Handler) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.Stock.Ledger(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLedgerResponse(l))
}

func (h *Handler) handleGetAvailability(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Stock.Availability(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
