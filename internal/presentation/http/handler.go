package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-inventory/internal/application/cart"
	appinventory "github.com/Zhima-Mochi/minishop-inventory/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-inventory/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-inventory/internal/application/payment"
	domcatalog "github.com/Zhima-Mochi/minishop-inventory/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability/logctx"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerTenantID       = "X-Tenant-ID"
	headerUserID         = "X-User-ID"

	anonymousActor = "anonymous"
	unknownRoute   = "unknown"
)

// Services are the use cases the HTTP surface drives.
type Services struct {
	Orders   *apporder.Lifecycle
	Payments *apppayment.Lifecycle
	Stock    *appinventory.ReservationManager
	Cart     *cart.Validator
	Catalog  domcatalog.Repository
	// CartHoldTTL bounds holds placed through /cart/holds.
	CartHoldTTL time.Duration
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
}

type Handler struct {
	svc Services
	log observability.Logger
	tel observability.Observability
}

func NewHandler(svc Services, logger observability.Logger, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = tel.Logger()
	}
	return &Handler{
		svc: svc,
		log: baseLogger.With(observability.F("component", componentHTTPHandler)),
		tel: tel,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Trace → ObservabilityMiddleware (request logger) → Access log → HTTP metrics → Handler
	r.Use(
		h.withTrace,
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			func(r *http.Request) string { return r.Header.Get(headerTenantID) },
			h.tel,
		),
		h.withAccessLog,
		h.withHTTPMetrics,
	)

	r.Get("/health", h.handleHealth)
	if h.svc.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.svc.Metrics)
	}

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.handleCreateOrder)
		r.Get("/{id}", h.handleGetOrder)
		r.Post("/{id}/cancel", h.handleCancelOrder)
		r.Post("/{id}/advance", h.handleAdvanceOrder)
	})
	r.Route("/payments", func(r chi.Router) {
		r.Get("/{id}", h.handleGetPayment)
		r.Post("/{id}/result", h.handleRecordPaymentResult)
		r.Post("/{id}/refund", h.handleRefundPayment)
	})
	r.Route("/cart", func(r chi.Router) {
		r.Post("/validate", h.handleValidateCart)
		r.Post("/holds", h.handlePlaceHold)
		r.Delete("/holds/{id}", h.handleReleaseHold)
	})
	r.Route("/admin", func(r chi.Router) {
		r.Post("/products", h.handleRegisterProduct)
		r.Post("/stock/{productID}/adjust", h.handleAdjustStock)
		r.Post("/stock/{productID}/lock", h.handleLockStock)
		r.Post("/stock/{productID}/unlock", h.handleUnlockStock)
	})
	r.Route("/stock", func(r chi.Router) {
		r.Get("/{productID}", h.handleGetLedger)
		r.Get("/{productID}/availability", h.handleGetAvailability)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
// The route template is only known once chi has matched, so the span is renamed afterwards.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("minishop.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctxWithSpan, span := tracer.Start(parentCtx,
			r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r.WithContext(ctxWithSpan))

		if route := routeFromContext(ctxWithSpan); route != unknownRoute {
			span.SetName(r.Method + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
		}
		span.SetAttributes(attribute.Int("http.status_code", lrw.status))
		if lrw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(lrw.status))
		}
	})
}

// withHTTPMetrics records RED-ish HTTP metrics using injected vectors.
// DO NOT new metrics inside the middleware.
func (h *Handler) withHTTPMetrics(next http.Handler) http.Handler {
	requests := h.tel.Metrics().Counter(observability.MHTTPRequests)
	duration := h.tel.Metrics().Histogram(observability.MHTTPRequestDuration)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		labels := []observability.Label{
			observability.L("method", r.Method),
			observability.L("route", routeFromContext(r.Context())),
			observability.L("status", strconv.Itoa(lrw.status)),
		}
		requests.Add(1, labels...)
		duration.Observe(time.Since(start).Seconds(), labels...)
	})
}

// actor is the opaque caller id recorded on status history entries.
func actor(r *http.Request) string {
	if id := r.Header.Get(headerUserID); id != "" {
		return id
	}
	return anonymousActor
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return shared.NewValidationError("body", err.Error())
	}
	return nil
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(r, dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

// writeDomainError maps the shared error taxonomy onto status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr  *shared.ValidationError
		stock *shared.InsufficientStockError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "validation", Field: verr.Field})
	case errors.As(err, &stock):
		available := stock.Available
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     err.Error(),
			Code:      "insufficient_stock",
			ProductID: stock.ProductID,
			Available: &available,
		})
	case errors.Is(err, shared.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation", err)
	case errors.Is(err, shared.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "insufficient_stock", err)
	case shared.IsInvariantViolation(err):
		logctx.FromOr(r.Context(), h.log).Error("invariant_violation", observability.F("error", err))
		writeError(w, http.StatusInternalServerError, "invariant_violation", err)
	case errors.Is(err, shared.ErrState):
		writeError(w, http.StatusConflict, "illegal_state", err)
	case errors.Is(err, shared.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, shared.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		logctx.FromOr(r.Context(), h.log).Error("http_internal_error", observability.F("error", err))
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}

// routeFromContext returns the chi route template for low-cardinality labels.
func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return unknownRoute
	}
	if rctx := chi.RouteContext(ctx); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unknownRoute
}
