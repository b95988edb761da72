package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-inventory/internal/application"
	domcatalog "github.com/Zhima-Mochi/minishop-inventory/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
)

const (
	cartService     = "cart-service"
	useCaseValidate = "cart.validate"
)

// Issue codes reported per line.
const (
	CodeInvalidQuantity   = "INVALID_QUANTITY"
	CodeProductNotFound   = "PRODUCT_NOT_FOUND"
	CodeProductInactive   = "PRODUCT_INACTIVE"
	CodeOutOfStock        = "OUT_OF_STOCK"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodePriceChanged      = "PRICE_CHANGED"
)

var DefaultDriftTolerance = decimal.RequireFromString("0.01")

// LedgerReader is the read-only view of stock the validator needs.
type LedgerReader interface {
	Get(ctx context.Context, productID string) (*dominv.Ledger, error)
}

type Line struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Issue struct {
	ProductID string `json:"product_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Available int    `json:"available,omitempty"`
}

type Result struct {
	IsValid        bool    `json:"is_valid"`
	Errors         []Issue `json:"errors"`
	Warnings       []Issue `json:"warnings"`
	CorrectedLines []Line  `json:"corrected_lines"`
}

// StockIssuesOnly reports whether every error is a stock shortage.
func (r *Result) StockIssuesOnly() bool {
	if len(r.Errors) == 0 {
		return false
	}
	for _, e := range r.Errors {
		if e.Code != CodeOutOfStock && e.Code != CodeInsufficientStock {
			return false
		}
	}
	return true
}

// Validator re-checks cart lines against the catalog and current stock at
// checkout. It never writes to either.
type Validator struct {
	catalog   domcatalog.Repository
	ledgers   LedgerReader
	tolerance decimal.Decimal
	inst      application.Instrumentation
}

func NewValidator(catalog domcatalog.Repository, ledgers LedgerReader, tolerance decimal.Decimal, tel observability.Observability) *Validator {
	if !tolerance.IsPositive() {
		tolerance = DefaultDriftTolerance
	}
	return &Validator{
		catalog:   catalog,
		ledgers:   ledgers,
		tolerance: tolerance,
		inst:      application.NewInstrumentation(cartService, tel),
	}
}

// Validate checks each line: the product exists and is active, enough units
// are available for sale (summed across lines of the same product), and the
// cart price still matches the selling price. A drifted price is corrected
// and reported as a warning.
func (v *Validator) Validate(ctx context.Context, lines []Line) (*Result, error) {
	return v.ValidateWithHolds(ctx, lines, nil)
}

// ValidateWithHolds is Validate for a customer who already holds units:
// held[productID] counts as available on top of the ledger's free stock.
func (v *Validator) ValidateWithHolds(ctx context.Context, lines []Line, held map[string]int) (_ *Result, err error) {
	ctx, run := v.inst.Begin(ctx, useCaseValidate, "ValidateCart", attribute.Int("lines", len(lines)))
	defer func() { run.End(err) }()

	if len(lines) == 0 {
		return nil, shared.NewValidationError("lines", "cart is empty")
	}

	requested := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity > 0 {
			requested[l.ProductID] += l.Quantity
		}
	}

	res := &Result{CorrectedLines: make([]Line, 0, len(lines))}
	checked := make(map[string]bool, len(lines))
	for _, l := range lines {
		corrected := l
		if l.Quantity <= 0 {
			res.Errors = append(res.Errors, Issue{ProductID: l.ProductID, Code: CodeInvalidQuantity,
				Message: "quantity must be greater than zero"})
			res.CorrectedLines = append(res.CorrectedLines, corrected)
			continue
		}

		product, perr := v.catalog.Get(ctx, l.ProductID)
		switch {
		case errors.Is(perr, shared.ErrNotFound):
			res.Errors = append(res.Errors, Issue{ProductID: l.ProductID, Code: CodeProductNotFound,
				Message: "product does not exist"})
			res.CorrectedLines = append(res.CorrectedLines, corrected)
			continue
		case perr != nil:
			return nil, fmt.Errorf("cart: load product %s: %w", l.ProductID, perr)
		}
		if !product.Active {
			res.Errors = append(res.Errors, Issue{ProductID: l.ProductID, Code: CodeProductInactive,
				Message: "product is no longer sold"})
		}

		if diff := product.SellingPrice.Sub(l.UnitPrice).Abs(); diff.GreaterThan(v.tolerance) {
			res.Warnings = append(res.Warnings, Issue{ProductID: l.ProductID, Code: CodePriceChanged,
				Message: fmt.Sprintf("price changed from %s to %s", l.UnitPrice.StringFixed(2), product.SellingPrice.StringFixed(2))})
		}
		corrected.UnitPrice = product.SellingPrice
		res.CorrectedLines = append(res.CorrectedLines, corrected)

		if checked[l.ProductID] {
			continue
		}
		checked[l.ProductID] = true

		ledger, lerr := v.ledgers.Get(ctx, l.ProductID)
		switch {
		case errors.Is(lerr, shared.ErrNotFound):
			res.Errors = append(res.Errors, Issue{ProductID: l.ProductID, Code: CodeOutOfStock, Message: "product has no stock record"})
			continue
		case lerr != nil:
			return nil, fmt.Errorf("cart: load stock %s: %w", l.ProductID, lerr)
		}
		available := ledger.AvailableForSale() + held[l.ProductID]
		switch {
		case available <= 0:
			res.Errors = append(res.Errors, Issue{ProductID: l.ProductID, Code: CodeOutOfStock, Message: "out of stock"})
		case available < requested[l.ProductID]:
			res.Errors = append(res.Errors, Issue{ProductID: l.ProductID, Code: CodeInsufficientStock,
				Message:   fmt.Sprintf("only %d available", available),
				Available: available})
		}
	}

	res.IsValid = len(res.Errors) == 0
	run.Field("is_valid", res.IsValid)
	run.Field("errors", len(res.Errors))
	run.Field("warnings", len(res.Warnings))
	return res, nil
}
