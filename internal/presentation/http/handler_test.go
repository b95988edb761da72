package httppresentation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-inventory/internal/application/cart"
	appinventory "github.com/Zhima-Mochi/minishop-inventory/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-inventory/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-inventory/internal/application/payment"
	dominv "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	dompayment "github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/idempotency"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability/obstest"
)

type acceptingGateway struct{}

func (acceptingGateway) Submit(_ context.Context, p *dompayment.Payment) (string, error) {
	return "ref-" + p.ID, nil
}

type fixture struct {
	rec    *obstest.Recorder
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rec := obstest.New()
	ids := id.NewUUIDGenerator()

	catalog := memory.NewCatalogRepository()
	ledgers := memory.NewLedgerRepository()
	stock := appinventory.NewReservationManager(ledgers, memory.NewReservationRepository(), ids, nil, rec, appinventory.Options{})
	validator := cart.NewValidator(catalog, ledgers, decimal.Zero, rec)
	payments := apppayment.NewLifecycle(memory.NewPaymentRepository(), acceptingGateway{}, idempotency.NewMemoryStore(time.Hour), ids, nil, rec)
	orders := apporder.NewLifecycle(memory.NewOrderRepository(), validator, stock, ids, nil, apporder.Pricing{}, rec)
	orders.SetPaymentPort(payments)
	payments.SetOrderPort(orders)

	h := NewHandler(Services{
		Orders:      orders,
		Payments:    payments,
		Stock:       stock,
		Cart:        validator,
		Catalog:     catalog,
		CartHoldTTL: time.Minute,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	}, nil, rec)

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &fixture{rec: rec, server: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerUserID, "admin-1")
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (f *fixture) registerProduct(t *testing.T, id string, price string, stock int) {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/admin/products", map[string]any{
		"id":              id,
		"name":            "Product " + id,
		"selling_price":   price,
		"initial_stock":   stock,
		"reorder_level":   1,
		"max_stock_level": 1000,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func orderBody(productID string, qty int, method string) map[string]any {
	return map[string]any{
		"customer_id": "cust-1",
		"items": []map[string]any{
			{"product_id": productID, "quantity": qty, "unit_price": "10.00"},
		},
		"shipping_address": map[string]any{
			"name": "Ada", "line1": "1 Main St", "city": "Taipei", "country": "TW",
		},
		"payment_method": method,
	}
}

func TestRegisterProduct(t *testing.T) {
	f := newFixture(t)
	f.registerProduct(t, "sku-a", "10.00", 5)

	var ledger ledgerResponse
	resp := f.do(t, http.MethodGet, "/stock/sku-a", nil, &ledger)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, ledger.QuantityOnHand)
	assert.Equal(t, 5, ledger.AvailableForSale)

	var errBody errorResponse
	resp = f.do(t, http.MethodPost, "/admin/products", map[string]any{
		"id": "sku-a", "name": "again", "selling_price": "1.00", "initial_stock": 1, "max_stock_level": 10,
	}, &errBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", errBody.Code)
}

func TestCardOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	f.registerProduct(t, "sku-a", "10.00", 5)

	var created createOrderResponse
	resp := f.do(t, http.MethodPost, "/orders", orderBody("sku-a", 2, "CARD"), &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, created.Payment)
	assert.Equal(t, "PENDING", string(created.Order.Status))
	assert.True(t, created.Order.Total.Equal(decimal.RequireFromString("20")))

	var avail map[string]any
	f.do(t, http.MethodGet, "/stock/sku-a/availability", nil, &avail)
	assert.EqualValues(t, 3, avail["available_for_sale"])

	var result paymentResultResponse
	resp = f.do(t, http.MethodPost, "/payments/"+created.Payment.ID+"/result", map[string]any{
		"event_id": "evt-1", "gateway_ref": "gw-1", "success": true,
	}, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, dompayment.StatusSuccess, result.Payment.Status)
	require.NotNil(t, result.Order)
	assert.Equal(t, "PAID", string(result.Order.Status))

	var dup paymentResultResponse
	f.do(t, http.MethodPost, "/payments/"+created.Payment.ID+"/result", map[string]any{
		"event_id": "evt-1", "gateway_ref": "gw-1", "success": true,
	}, &dup)
	assert.True(t, dup.Duplicate)

	var ledger ledgerResponse
	f.do(t, http.MethodGet, "/stock/sku-a", nil, &ledger)
	assert.Equal(t, 3, ledger.QuantityOnHand)
	assert.Equal(t, 0, ledger.QuantityReserved)

	var refunded refundResultResponse
	resp = f.do(t, http.MethodPost, "/payments/"+created.Payment.ID+"/refund", map[string]any{"reason": "damaged"}, &refunded)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, dompayment.StatusRefunded, refunded.Payment.Status)
	require.NotNil(t, refunded.Order)
	assert.Equal(t, "CANCELLED", string(refunded.Order.Status))

	var order orderResponse
	f.do(t, http.MethodGet, "/orders/"+created.Order.ID, nil, &order)
	last := order.StatusHistory[len(order.StatusHistory)-1]
	assert.Equal(t, "admin-1", last.UpdatedBy)

	f.do(t, http.MethodGet, "/stock/sku-a", nil, &ledger)
	assert.Equal(t, 5, ledger.QuantityOnHand)
}

func TestCancelPendingOrder(t *testing.T) {
	f := newFixture(t)
	f.registerProduct(t, "sku-a", "10.00", 5)

	var created createOrderResponse
	f.do(t, http.MethodPost, "/orders", orderBody("sku-a", 2, "COD"), &created)

	var cancelled orderResponse
	resp := f.do(t, http.MethodPost, "/orders/"+created.Order.ID+"/cancel", map[string]any{"reason": "changed mind"}, &cancelled)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "CANCELLED", string(cancelled.Status))

	var errBody errorResponse
	resp = f.do(t, http.MethodPost, "/orders/"+created.Order.ID+"/advance", map[string]any{"status": "SHIPPED"}, &errBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "illegal_state", errBody.Code)

	var ledger ledgerResponse
	f.do(t, http.MethodGet, "/stock/sku-a", nil, &ledger)
	assert.Equal(t, 0, ledger.QuantityReserved)
	assert.Equal(t, 5, ledger.AvailableForSale)
}

func TestInsufficientStockCarriesAvailable(t *testing.T) {
	f := newFixture(t)
	f.registerProduct(t, "sku-a", "10.00", 1)

	var errBody errorResponse
	resp := f.do(t, http.MethodPost, "/cart/holds", map[string]any{
		"holder_id": "cart-1", "product_id": "sku-a", "quantity": 3,
	}, &errBody)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "insufficient_stock", errBody.Code)
	require.NotNil(t, errBody.Available)
	assert.Equal(t, 1, *errBody.Available)
}

func TestCartHolds(t *testing.T) {
	f := newFixture(t)
	f.registerProduct(t, "sku-a", "10.00", 4)

	var hold reservationResponse
	resp := f.do(t, http.MethodPost, "/cart/holds", map[string]any{
		"holder_id": "cart-1", "product_id": "sku-a", "quantity": 3,
	}, &hold)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, hold.ExpiresAt)

	var ledger ledgerResponse
	f.do(t, http.MethodGet, "/stock/sku-a", nil, &ledger)
	assert.Equal(t, 3, ledger.QuantityReserved)

	var released reservationResponse
	resp = f.do(t, http.MethodDelete, "/cart/holds/"+hold.ID, nil, &released)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var again reservationResponse
	resp = f.do(t, http.MethodDelete, "/cart/holds/"+hold.ID, nil, &again)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, released.State, again.State)

	f.do(t, http.MethodGet, "/stock/sku-a", nil, &ledger)
	assert.Equal(t, 0, ledger.QuantityReserved)

	var created createOrderResponse
	f.do(t, http.MethodPost, "/orders", orderBody("sku-a", 1, "COD"), &created)
	resp = f.do(t, http.MethodDelete, "/cart/holds/"+created.Order.Lines[0].ReservationID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCheckoutTakesOverCartHolds(t *testing.T) {
	f := newFixture(t)
	f.registerProduct(t, "sku-a", "10.00", 5)

	var hold reservationResponse
	resp := f.do(t, http.MethodPost, "/cart/holds", map[string]any{
		"holder_id": "cart-cust-1", "product_id": "sku-a", "quantity": 5,
	}, &hold)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := orderBody("sku-a", 5, "COD")
	body["cart_holder_id"] = "cart-cust-1"
	var created createOrderResponse
	resp = f.do(t, http.MethodPost, "/orders", body, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var ledger ledgerResponse
	f.do(t, http.MethodGet, "/stock/sku-a", nil, &ledger)
	assert.Equal(t, 5, ledger.QuantityReserved)

	var late reservationResponse
	resp = f.do(t, http.MethodDelete, "/cart/holds/"+hold.ID, nil, &late)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, dominv.ReservationTransferred, late.State)
	f.do(t, http.MethodGet, "/stock/sku-a", nil, &ledger)
	assert.Equal(t, 5, ledger.QuantityReserved)
}

func TestValidateCart(t *testing.T) {
	f := newFixture(t)
	f.registerProduct(t, "sku-a", "10.00", 1)

	var result cart.Result
	resp := f.do(t, http.MethodPost, "/cart/validate", map[string]any{
		"items": []map[string]any{{"product_id": "sku-a", "quantity": 2, "unit_price": "10.00"}},
	}, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, result.IsValid)
	require.NotEmpty(t, result.Errors)
}

func TestAdminStockChanges(t *testing.T) {
	f := newFixture(t)
	f.registerProduct(t, "sku-a", "10.00", 5)

	var ledger ledgerResponse
	resp := f.do(t, http.MethodPost, "/admin/stock/sku-a/adjust", map[string]any{"delta": 5, "reason": "delivery"}, &ledger)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 10, ledger.QuantityOnHand)

	resp = f.do(t, http.MethodPost, "/admin/stock/sku-a/lock", map[string]any{"quantity": 4, "reason": "audit"}, &ledger)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 6, ledger.AvailableForSale)

	resp = f.do(t, http.MethodPost, "/admin/stock/sku-a/unlock", map[string]any{"quantity": 4, "reason": "audit done"}, &ledger)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 10, ledger.AvailableForSale)

	var errBody errorResponse
	resp = f.do(t, http.MethodPost, "/admin/stock/sku-a/lock", map[string]any{"quantity": 1}, &errBody)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "reason", errBody.Field)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown order", http.MethodGet, "/orders/missing", nil, http.StatusNotFound},
		{"unknown payment", http.MethodGet, "/payments/missing", nil, http.StatusNotFound},
		{"unknown ledger", http.MethodGet, "/stock/missing", nil, http.StatusNotFound},
		{"unknown field", http.MethodPost, "/orders", map[string]any{"bogus": true}, http.StatusBadRequest},
		{"empty cart", http.MethodPost, "/cart/validate", map[string]any{"items": []any{}}, http.StatusBadRequest},
		{"bad payment method", http.MethodPost, "/orders", orderBody("sku-a", 1, "CHEQUE"), http.StatusBadRequest},
		{"refund needs reason", http.MethodPost, "/payments/missing/refund", map[string]any{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, tt.method, tt.path, tt.body, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestMiddlewareRecordsRouteTemplate(t *testing.T) {
	f := newFixture(t)
	f.registerProduct(t, "sku-a", "10.00", 5)

	resp := f.do(t, http.MethodGet, "/stock/sku-a", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))

	assert.Equal(t, 1.0, f.rec.Count(observability.MHTTPRequests, "method=GET,route=/stock/{productID},status=200"))
	assert.Equal(t, 1.0, f.rec.Count(observability.MHTTPRequests, "method=POST,route=/admin/products,status=201"))
	assert.GreaterOrEqual(t, f.rec.Samples(observability.MHTTPRequestDuration), 2)

	logs := f.rec.Entries("http_access")
	require.NotEmpty(t, logs)
	assert.Equal(t, "/stock/{productID}", logs[len(logs)-1].Fields["route"])
	assert.NotEmpty(t, logs[len(logs)-1].Fields["request_id"])
	assert.Equal(t, "admin-1", logs[len(logs)-1].Fields["user_id"])
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
