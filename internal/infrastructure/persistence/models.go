package persistence

import (
	"time"

	"github.com/shopspring/decimal"

	domcatalog "github.com/Zhima-Mochi/minishop-inventory/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-inventory/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
)

type productModel struct {
	ID           string          `gorm:"primaryKey;size:64"`
	Name         string          `gorm:"size:255;not null"`
	SellingPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Active       bool            `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (productModel) TableName() string { return "products" }

func productFromDomain(p *domcatalog.Product) productModel {
	return productModel{
		ID:           p.ID,
		Name:         p.Name,
		SellingPrice: p.SellingPrice,
		Active:       p.Active,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (m productModel) toDomain() *domcatalog.Product {
	return &domcatalog.Product{
		ID:           m.ID,
		Name:         m.Name,
		SellingPrice: m.SellingPrice,
		Active:       m.Active,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

type ledgerModel struct {
	ProductID        string `gorm:"primaryKey;size:64"`
	QuantityOnHand   int    `gorm:"not null;check:quantity_on_hand >= 0"`
	QuantityReserved int    `gorm:"not null;check:quantity_reserved >= 0"`
	QuantityLocked   int    `gorm:"not null;check:quantity_locked >= 0"`
	ReorderLevel     int    `gorm:"not null"`
	MaxStockLevel    int    `gorm:"not null"`
	Version          int64  `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ledgerModel) TableName() string { return "stock_ledgers" }

func ledgerFromDomain(l *dominv.Ledger) ledgerModel {
	return ledgerModel{
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

func (m ledgerModel) toDomain() *dominv.Ledger {
	return &dominv.Ledger{
		ProductID:        m.ProductID,
		QuantityOnHand:   m.QuantityOnHand,
		QuantityReserved: m.QuantityReserved,
		QuantityLocked:   m.QuantityLocked,
		ReorderLevel:     m.ReorderLevel,
		MaxStockLevel:    m.MaxStockLevel,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

type reservationModel struct {
	ID        string     `gorm:"primaryKey;size:64"`
	ProductID string     `gorm:"size:64;not null;index"`
	Quantity  int        `gorm:"not null"`
	HolderID  string     `gorm:"size:64;not null;index"`
	Reason    string     `gorm:"size:32;not null"`
	State     string     `gorm:"size:16;not null;index:idx_reservations_sweep,priority:1"`
	ExpiresAt *time.Time `gorm:"index:idx_reservations_sweep,priority:2"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (reservationModel) TableName() string { return "stock_reservations" }

func reservationFromDomain(r *dominv.Reservation) reservationModel {
	m := reservationModel{
		ID:        r.ID,
		ProductID: r.ProductID,
		Quantity:  r.Quantity,
		HolderID:  r.HolderID,
		Reason:    string(r.Reason),
		State:     string(r.State),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		t := r.ExpiresAt.UTC()
		m.ExpiresAt = &t
	}
	return m
}

func (m reservationModel) toDomain() *dominv.Reservation {
	r := &dominv.Reservation{
		ID:        m.ID,
		ProductID: m.ProductID,
		Quantity:  m.Quantity,
		HolderID:  m.HolderID,
		Reason:    dominv.Reason(m.Reason),
		State:     dominv.ReservationState(m.State),
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
	if m.ExpiresAt != nil {
		t := m.ExpiresAt.UTC()
		r.ExpiresAt = &t
	}
	return r
}

// orderModel keeps lines, history and the address as JSON columns; they are
// always read and written with the order.
type orderModel struct {
	ID                 string                  `gorm:"primaryKey;size:64"`
	CustomerID         string                  `gorm:"size:64;not null;uniqueIndex:idx_orders_idempotency,priority:1"`
	IdempotencyKey     *string                 `gorm:"size:128;uniqueIndex:idx_orders_idempotency,priority:2"`
	Lines              []domorder.Line         `gorm:"type:text;serializer:json;not null"`
	ShippingAddress    domorder.Address        `gorm:"type:text;serializer:json;not null"`
	PaymentMethod      string                  `gorm:"size:16;not null"`
	PaymentID          string                  `gorm:"size:64"`
	Subtotal           decimal.Decimal         `gorm:"type:decimal(12,2);not null"`
	Shipping           decimal.Decimal         `gorm:"type:decimal(12,2);not null"`
	Tax                decimal.Decimal         `gorm:"type:decimal(12,2);not null"`
	Total              decimal.Decimal         `gorm:"type:decimal(12,2);not null"`
	Status             string                  `gorm:"size:16;not null;index"`
	PaymentStatus      string                  `gorm:"size:16;not null"`
	StatusHistory      []domorder.HistoryEntry `gorm:"type:text;serializer:json;not null"`
	CancelledAt        *time.Time
	CancellationReason string `gorm:"size:255"`
	NeedsReview        bool   `gorm:"not null;index"`
	ReviewReason       string `gorm:"size:255"`
	Version            int64  `gorm:"not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (orderModel) TableName() string { return "orders" }

func orderFromDomain(o *domorder.Order) orderModel {
	m := orderModel{
		ID:                 o.ID,
		CustomerID:         o.CustomerID,
		Lines:              o.Lines,
		ShippingAddress:    o.ShippingAddress,
		PaymentMethod:      string(o.PaymentMethod),
		PaymentID:          o.PaymentID,
		Subtotal:           o.Subtotal,
		Shipping:           o.Shipping,
		Tax:                o.Tax,
		Total:              o.Total,
		Status:             string(o.Status),
		PaymentStatus:      string(o.PaymentStatus),
		StatusHistory:      o.StatusHistory,
		CancelledAt:        o.CancelledAt,
		CancellationReason: o.CancellationReason,
		NeedsReview:        o.NeedsReview,
		ReviewReason:       o.ReviewReason,
		Version:            o.Version,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
	// NULL keeps orders without a key out of the unique index.
	if o.IdempotencyKey != "" {
		key := o.IdempotencyKey
		m.IdempotencyKey = &key
	}
	return m
}

func (m orderModel) toDomain() *domorder.Order {
	o := &domorder.Order{
		ID:                 m.ID,
		CustomerID:         m.CustomerID,
		Lines:              m.Lines,
		ShippingAddress:    m.ShippingAddress,
		PaymentMethod:      dompayment.Method(m.PaymentMethod),
		PaymentID:          m.PaymentID,
		Subtotal:           m.Subtotal,
		Shipping:           m.Shipping,
		Tax:                m.Tax,
		Total:              m.Total,
		Status:             domorder.Status(m.Status),
		PaymentStatus:      domorder.PaymentStatus(m.PaymentStatus),
		StatusHistory:      m.StatusHistory,
		CancellationReason: m.CancellationReason,
		NeedsReview:        m.NeedsReview,
		ReviewReason:       m.ReviewReason,
		Version:            m.Version,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}
	if m.IdempotencyKey != nil {
		o.IdempotencyKey = *m.IdempotencyKey
	}
	if m.CancelledAt != nil {
		t := m.CancelledAt.UTC()
		o.CancelledAt = &t
	}
	return o
}

type paymentModel struct {
	ID             string              `gorm:"primaryKey;size:64"`
	OrderID        string              `gorm:"size:64;not null;index"`
	Amount         decimal.Decimal     `gorm:"type:decimal(12,2);not null"`
	Method         string              `gorm:"size:16;not null"`
	Status         string              `gorm:"size:16;not null;index"`
	GatewayRef     string              `gorm:"size:128"`
	GatewayEventID string              `gorm:"size:128"`
	FailureReason  string              `gorm:"size:255"`
	RefundAmount   decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	RefundReason   string              `gorm:"size:255"`
	RefundedAt     *time.Time
	Version        int64 `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (paymentModel) TableName() string { return "payments" }

func paymentFromDomain(p *dompayment.Payment) paymentModel {
	m := paymentModel{
		ID:             p.ID,
		OrderID:        p.OrderID,
		Amount:         p.Amount,
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
		at := p.Refund.ProcessedAt
		m.RefundAmount = decimal.NewNullDecimal(p.Refund.Amount)
		m.RefundReason = p.Refund.Reason
		m.RefundedAt = &at
	}
	return m
}

func (m paymentModel) toDomain() *dompayment.Payment {
	p := &dompayment.Payment{
		ID:             m.ID,
		OrderID:        m.OrderID,
		Amount:         m.Amount,
		Method:         dompayment.Method(m.Method),
		Status:         dompayment.Status(m.Status),
		GatewayRef:     m.GatewayRef,
		GatewayEventID: m.GatewayEventID,
		FailureReason:  m.FailureReason,
		Version:        m.Version,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
	if m.RefundAmount.Valid {
		r := &dompayment.Refund{Amount: m.RefundAmount.Decimal, Reason: m.RefundReason}
		if m.RefundedAt != nil {
			r.ProcessedAt = m.RefundedAt.UTC()
		}
		p.Refund = r
	}
	return p
}
