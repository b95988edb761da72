package mongostore

import (
	"time"

	"github.com/shopspring/decimal"

	domcatalog "github.com/Zhima-Mochi/minishop-inventory/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-inventory/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
)

// Money is stored as its decimal string so no precision is lost to doubles.

func money(d decimal.Decimal) string { return d.String() }

func parseMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

type productDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	SellingPrice string    `bson:"selling_price"`
	Active       bool      `bson:"active"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func productToDoc(p *domcatalog.Product) productDoc {
	return productDoc{
		ID:           p.ID,
		Name:         p.Name,
		SellingPrice: money(p.SellingPrice),
		Active:       p.Active,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (d productDoc) toDomain() *domcatalog.Product {
	return &domcatalog.Product{
		ID:           d.ID,
		Name:         d.Name,
		SellingPrice: parseMoney(d.SellingPrice),
		Active:       d.Active,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

type ledgerDoc struct {
	ProductID        string    `bson:"_id"`
	QuantityOnHand   int       `bson:"quantity_on_hand"`
	QuantityReserved int       `bson:"quantity_reserved"`
	QuantityLocked   int       `bson:"quantity_locked"`
	ReorderLevel     int       `bson:"reorder_level"`
	MaxStockLevel    int       `bson:"max_stock_level"`
	Version          int64     `bson:"version"`
	CreatedAt        time.Time `bson:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

func ledgerToDoc(l *dominv.Ledger) ledgerDoc {
	return ledgerDoc{
		ProductID:        l.ProductID,
		QuantityOnHand:   l.QuantityOnHand,
		QuantityReserved: l.QuantityReserved,
		QuantityLocked:   l.QuantityLocked,
		ReorderLevel:     l.ReorderLevel,
		MaxStockLevel:    l.MaxStockLevel,
		Version:          l.Version,
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
}

func (d ledgerDoc) toDomain() *dominv.Ledger {
	return &dominv.Ledger{
		ProductID:        d.ProductID,
		QuantityOnHand:   d.QuantityOnHand,
		QuantityReserved: d.QuantityReserved,
		QuantityLocked:   d.QuantityLocked,
		ReorderLevel:     d.ReorderLevel,
		MaxStockLevel:    d.MaxStockLevel,
		Version:          d.Version,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
}

type reservationDoc struct {
	ID        string     `bson:"_id"`
	ProductID string     `bson:"product_id"`
	Quantity  int        `bson:"quantity"`
	HolderID  string     `bson:"holder_id"`
	Reason    string     `bson:"reason"`
	State     string     `bson:"state"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
	CreatedAt time.Time  `bson:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

func reservationToDoc(r *dominv.Reservation) reservationDoc {
	return reservationDoc{
		ID:        r.ID,
		ProductID: r.ProductID,
		Quantity:  r.Quantity,
		HolderID:  r.HolderID,
		Reason:    string(r.Reason),
		State:     string(r.State),
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (d reservationDoc) toDomain() *dominv.Reservation {
	r := &dominv.Reservation{
		ID:        d.ID,
		ProductID: d.ProductID,
		Quantity:  d.Quantity,
		HolderID:  d.HolderID,
		Reason:    dominv.Reason(d.Reason),
		State:     dominv.ReservationState(d.State),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if d.ExpiresAt != nil {
		t := d.ExpiresAt.UTC()
		r.ExpiresAt = &t
	}
	return r
}

type lineDoc struct {
	ProductID     string `bson:"product_id"`
	Quantity      int    `bson:"quantity"`
	UnitPrice     string `bson:"unit_price"`
	LineTotal     string `bson:"line_total"`
	ReservationID string `bson:"reservation_id"`
	Confirmed     bool   `bson:"confirmed"`
}

type historyDoc struct {
	Status    string    `bson:"status"`
	At        time.Time `bson:"at"`
	Note      string    `bson:"note,omitempty"`
	UpdatedBy string    `bson:"updated_by,omitempty"`
}

type orderDoc struct {
	ID                 string           `bson:"_id"`
	CustomerID         string           `bson:"customer_id"`
	IdempotencyKey     *string          `bson:"idempotency_key,omitempty"`
	Lines              []lineDoc        `bson:"lines"`
	ShippingAddress    domorder.Address `bson:"shipping_address"`
	PaymentMethod      string           `bson:"payment_method"`
	PaymentID          string           `bson:"payment_id,omitempty"`
	Subtotal           string           `bson:"subtotal"`
	Shipping           string           `bson:"shipping"`
	Tax                string           `bson:"tax"`
	Total              string           `bson:"total"`
	Status             string           `bson:"status"`
	PaymentStatus      string           `bson:"payment_status"`
	StatusHistory      []historyDoc     `bson:"status_history"`
	CancelledAt        *time.Time       `bson:"cancelled_at,omitempty"`
	CancellationReason string           `bson:"cancellation_reason,omitempty"`
	NeedsReview        bool             `bson:"needs_review"`
	ReviewReason       string           `bson:"review_reason,omitempty"`
	Version            int64            `bson:"version"`
	CreatedAt          time.Time        `bson:"created_at"`
	UpdatedAt          time.Time        `bson:"updated_at"`
}

func orderToDoc(o *domorder.Order) orderDoc {
	d := orderDoc{
		ID:                 o.ID,
		CustomerID:         o.CustomerID,
		ShippingAddress:    o.ShippingAddress,
		PaymentMethod:      string(o.PaymentMethod),
		PaymentID:          o.PaymentID,
		Subtotal:           money(o.Subtotal),
		Shipping:           money(o.Shipping),
		Tax:                money(o.Tax),
		Total:              money(o.Total),
		Status:             string(o.Status),
		PaymentStatus:      string(o.PaymentStatus),
		CancelledAt:        o.CancelledAt,
		CancellationReason: o.CancellationReason,
		NeedsReview:        o.NeedsReview,
		ReviewReason:       o.ReviewReason,
		Version:            o.Version,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
	if o.IdempotencyKey != "" {
		key := o.IdempotencyKey
		d.IdempotencyKey = &key
	}
	for _, l := range o.Lines {
		d.Lines = append(d.Lines, lineDoc{
			ProductID:     l.ProductID,
			Quantity:      l.Quantity,
			UnitPrice:     money(l.UnitPrice),
			LineTotal:     money(l.LineTotal),
			ReservationID: l.ReservationID,
			Confirmed:     l.Confirmed,
		})
	}
	for _, h := range o.StatusHistory {
		d.StatusHistory = append(d.StatusHistory, historyDoc{
			Status: string(h.Status), At: h.At, Note: h.Note, UpdatedBy: h.UpdatedBy,
		})
	}
	return d
}

func (d orderDoc) toDomain() *domorder.Order {
	o := &domorder.Order{
		ID:                 d.ID,
		CustomerID:         d.CustomerID,
		ShippingAddress:    d.ShippingAddress,
		PaymentMethod:      dompayment.Method(d.PaymentMethod),
		PaymentID:          d.PaymentID,
		Subtotal:           parseMoney(d.Subtotal),
		Shipping:           parseMoney(d.Shipping),
		Tax:                parseMoney(d.Tax),
		Total:              parseMoney(d.Total),
		Status:             domorder.Status(d.Status),
		PaymentStatus:      domorder.PaymentStatus(d.PaymentStatus),
		CancellationReason: d.CancellationReason,
		NeedsReview:        d.NeedsReview,
		ReviewReason:       d.ReviewReason,
		Version:            d.Version,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
	if d.IdempotencyKey != nil {
		o.IdempotencyKey = *d.IdempotencyKey
	}
	if d.CancelledAt != nil {
		t := d.CancelledAt.UTC()
		o.CancelledAt = &t
	}
	for _, l := range d.Lines {
		o.Lines = append(o.Lines, domorder.Line{
			ProductID:     l.ProductID,
			Quantity:      l.Quantity,
			UnitPrice:     parseMoney(l.UnitPrice),
			LineTotal:     parseMoney(l.LineTotal),
			ReservationID: l.ReservationID,
			Confirmed:     l.Confirmed,
		})
	}
	for _, h := range d.StatusHistory {
		o.StatusHistory = append(o.StatusHistory, domorder.HistoryEntry{
			Status: domorder.Status(h.Status), At: h.At.UTC(), Note: h.Note, UpdatedBy: h.UpdatedBy,
		})
	}
	return o
}

type refundDoc struct {
	Amount      string    `bson:"amount"`
	Reason      string    `bson:"reason"`
	ProcessedAt time.Time `bson:"processed_at"`
}

type paymentDoc struct {
	ID             string     `bson:"_id"`
	OrderID        string     `bson:"order_id"`
	Amount         string     `bson:"amount"`
	Method         string     `bson:"method"`
	Status         string     `bson:"status"`
	GatewayRef     string     `bson:"gateway_ref,omitempty"`
	GatewayEventID string     `bson:"gateway_event_id,omitempty"`
	FailureReason  string     `bson:"failure_reason,omitempty"`
	Refund         *refundDoc `bson:"refund,omitempty"`
	Version        int64      `bson:"version"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
}

func paymentToDoc(p *dompayment.Payment) paymentDoc {
	d := paymentDoc{
		ID:             p.ID,
		OrderID:        p.OrderID,
		Amount:         money(p.Amount),
		Method:         string(p.Method),
		Status:         string(p.Status),
		GatewayRef:     p.GatewayRef,
		GatewayEventID: p.GatewayEventID,
		FailureReason:  p.FailureReason,
		Version:        p.Version,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	if p.Refund != nil {
		d.Refund = &refundDoc{Amount: money(p.Refund.Amount), Reason: p.Refund.Reason, ProcessedAt: p.Refund.ProcessedAt}
	}
	return d
}

func (d paymentDoc) toDomain() *dompayment.Payment {
	p := &dompayment.Payment{
		ID:             d.ID,
		OrderID:        d.OrderID,
		Amount:         parseMoney(d.Amount),
		Method:         dompayment.Method(d.Method),
		Status:         dompayment.Status(d.Status),
		GatewayRef:     d.GatewayRef,
		GatewayEventID: d.GatewayEventID,
		FailureReason:  d.FailureReason,
		Version:        d.Version,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
	if d.Refund != nil {
		p.Refund = &dompayment.Refund{
			Amount:      parseMoney(d.Refund.Amount),
			Reason:      d.Refund.Reason,
			ProcessedAt: d.Refund.ProcessedAt.UTC(),
		}
	}
	return p
}
