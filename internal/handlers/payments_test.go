package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/services"
)

func newPaymentRouter(svc services.PaymentService, opts ...PaymentHandlersOption) chi.Router {
	h := NewPaymentHandlers(svc, opts...)
	router := chi.NewRouter()
	router.Route("/payments", h.Routes)
	router.Route("/webhooks", h.WebhookRoutes)
	return router
}

func TestPaymentHandlersStatus(t *testing.T) {
	svc := &stubPaymentService{
		statusFn: func(_ context.Context, code string) (services.PaymentStatusView, error) {
			if code != "FS1" {
				return services.PaymentStatusView{}, services.ErrOrderNotFound
			}
			return services.PaymentStatusView{
				OrderCode:     "FS1",
				PaymentStatus: domain.PaymentStatusCompleted,
				OrderStatus:   domain.OrderStatusConfirmed,
			}, nil
		},
	}
	router := newPaymentRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payments/status?orderCode=FS1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["paymentStatus"] != "completed" || body["orderStatus"] != "confirmed" {
		t.Fatalf("unexpected body %v", body)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payments/status?orderCode=NOPE", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPaymentHandlersStatusRateLimitedPerIP(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	svc := &stubPaymentService{
		statusFn: func(context.Context, string) (services.PaymentStatusView, error) {
			return services.PaymentStatusView{OrderCode: "FS1"}, nil
		},
	}
	router := newPaymentRouter(svc, WithStatusQueryLimit(2), WithPaymentClock(func() time.Time { return now }))

	query := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/payments/status?orderCode=FS1", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := query("203.0.113.5:4000"); code != http.StatusOK {
		t.Fatalf("first query: %d", code)
	}
	if code := query("203.0.113.5:4001"); code != http.StatusOK {
		t.Fatalf("second query: %d", code)
	}
	if code := query("203.0.113.5:4002"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third query, got %d", code)
	}
	if code := query("198.51.100.7:5000"); code != http.StatusOK {
		t.Fatalf("other client should not be limited, got %d", code)
	}

	now = now.Add(statusQueryWindow + time.Second)
	if code := query("203.0.113.5:4003"); code != http.StatusOK {
		t.Fatalf("expected limit reset after window, got %d", code)
	}
}

func TestPaymentHandlersCallback(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"settled", `{"data":"eyJ9","mac":"ab12"}`, nil, http.StatusOK, "OK"},
		{"invalid mac", `{"data":"eyJ9","mac":"ab12"}`, services.ErrInvalidSignature, http.StatusBadRequest, "Invalid MAC"},
		{"unknown transaction", `{"data":"eyJ9","mac":"ab12"}`, fmt.Errorf("%w: trans 1", services.ErrOrderNotFound), http.StatusNotFound, "Order not found"},
		{"store failure", `{"data":"eyJ9","mac":"ab12"}`, services.ErrUnavailable, http.StatusInternalServerError, "Error"},
		{"malformed data", `{"data":"eyJ9","mac":"ab12"}`, services.ErrValidation, http.StatusBadRequest, "Invalid payload"},
		{"not json", `data=x&mac=y`, nil, http.StatusBadRequest, "Invalid payload"},
		{"missing mac", `{"data":"eyJ9"}`, nil, http.StatusBadRequest, "Invalid payload"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var received services.CallbackInput
			svc := &stubPaymentService{
				callbackFn: func(_ context.Context, in services.CallbackInput) (services.CallbackOutcome, error) {
					received = in
					return services.CallbackOutcome{Changed: true}, tc.err
				},
			}
			rr := httptest.NewRecorder()
			newPaymentRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/payments/gateway", strings.NewReader(tc.body)))

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if got := rr.Body.String(); got != tc.wantBody {
				t.Fatalf("expected body %q, got %q", tc.wantBody, got)
			}
			if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
				t.Fatalf("expected plain text, got %s", ct)
			}
			if tc.wantStatus == http.StatusOK && (received.Data != "eyJ9" || received.MAC != "ab12") {
				t.Fatalf("unexpected input %+v", received)
			}
		})
	}
}

func TestPaymentHandlersCallbackRejectsOversizedBody(t *testing.T) {
	svc := &stubPaymentService{
		callbackFn: func(context.Context, services.CallbackInput) (services.CallbackOutcome, error) {
			return services.CallbackOutcome{}, errors.New("must not be called")
		},
	}
	body := `{"data":"` + strings.Repeat("a", maxCallbackBodySize) + `","mac":"x"}`
	rr := httptest.NewRecorder()
	newPaymentRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/payments/gateway", strings.NewReader(body)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
