package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/furnishop/api/internal/platform/httpx"
	"github.com/furnishop/api/internal/platform/requestctx"
	"github.com/furnishop/api/internal/services"
)

const (
	maxCallbackBodySize     = 64 * 1024
	defaultStatusQueryLimit = 30
	statusQueryWindow       = time.Minute
)

// PaymentHandlers serves the public status query and the gateway callback.
type PaymentHandlers struct {
	payments services.PaymentService
	limiter  rateLimiter
}

// PaymentHandlersOption customises PaymentHandlers.
type PaymentHandlersOption func(*paymentHandlersConfig)

type paymentHandlersConfig struct {
	limit int
	clock func() time.Time
}

// WithStatusQueryLimit sets the number of status queries allowed per client IP and minute.
// Zero or a negative value disables limiting.
func WithStatusQueryLimit(limit int) PaymentHandlersOption {
	return func(cfg *paymentHandlersConfig) {
		cfg.limit = limit
	}
}

// WithPaymentClock overrides the limiter clock.
func WithPaymentClock(clock func() time.Time) PaymentHandlersOption {
	return func(cfg *paymentHandlersConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// NewPaymentHandlers constructs payment handlers.
func NewPaymentHandlers(payments services.PaymentService, opts ...PaymentHandlersOption) *PaymentHandlers {
	cfg := paymentHandlersConfig{limit: defaultStatusQueryLimit, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &PaymentHandlers{
		payments: payments,
		limiter:  newSimpleRateLimiter(cfg.limit, statusQueryWindow, cfg.clock),
	}
}

// Routes registers /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/status", h.status)
}

// WebhookRoutes registers the gateway callback under /webhooks.
func (h *PaymentHandlers) WebhookRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/gateway", h.callback)
}

type paymentStatusPayload struct {
	OrderCode     string `json:"orderCode"`
	PaymentStatus string `json:"paymentStatus"`
	OrderStatus   string `json:"orderStatus"`
}

func (h *PaymentHandlers) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
		w.Header().Set("Retry-After", "60")
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many status queries", http.StatusTooManyRequests))
		return
	}
	view, err := h.payments.Status(ctx, r.URL.Query().Get("orderCode"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, paymentStatusPayload{
		OrderCode:     view.OrderCode,
		PaymentStatus: string(view.PaymentStatus),
		OrderStatus:   string(view.OrderStatus),
	})
}

type callbackRequest struct {
	Data string `json:"data"`
	MAC  string `json:"mac"`
}

// callback answers in plain text because the gateway only inspects the status line and body.
func (h *PaymentHandlers) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writePlain(w, http.StatusInternalServerError, "Unavailable")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBodySize+1))
	if err != nil || len(body) > maxCallbackBodySize {
		writePlain(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	var req callbackRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Data == "" || req.MAC == "" {
		writePlain(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	if _, err := h.payments.HandleCallback(ctx, services.CallbackInput{Data: req.Data, MAC: req.MAC}); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidSignature):
			writePlain(w, http.StatusBadRequest, "Invalid MAC")
		case errors.Is(err, services.ErrValidation):
			writePlain(w, http.StatusBadRequest, "Invalid payload")
		case errors.Is(err, services.ErrNotFound):
			writePlain(w, http.StatusNotFound, "Order not found")
		default:
			writePlain(w, http.StatusInternalServerError, "Error")
		}
		return
	}
	writePlain(w, http.StatusOK, "OK")
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// clientIP prefers the address recorded by the request logger, which runs after RealIP.
func clientIP(r *http.Request) string {
	if ip := requestctx.ClientIP(r.Context()); ip != "" {
		return ip
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
