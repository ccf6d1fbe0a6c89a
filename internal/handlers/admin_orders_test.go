package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/platform/auth"
	"github.com/furnishop/api/internal/services"
)

func TestAdminOrderHandlersTransition(t *testing.T) {
	var captured services.TransitionCommand
	svc := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.TransitionCommand) (services.Order, error) {
			captured = cmd
			if cmd.NewStatus == "pending" {
				return services.Order{}, &services.TransitionError{From: domain.OrderStatusConfirmed, To: domain.OrderStatusPending}
			}
			order := sampleOrder()
			order.Status = domain.OrderStatusShipping
			return order, nil
		},
	}
	router := chi.NewRouter()
	router.Route("/admin", NewAdminOrderHandlers(newTestAuthenticator(), svc).Routes)

	send := func(token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord-1/status", strings.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	if rr := send("", `{"status":"shipping"}`); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := send("user-token", `{"status":"shipping"}`); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for shopper, got %d", rr.Code)
	}

	rr := send("admin-token", `{"status":"shipping","note":"<b>left warehouse</b>"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord-1" || captured.ActorID != "admin-1" || captured.NewStatus != "shipping" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if body := decodeBody(t, rr); body["status"] != "shipping" {
		t.Fatalf("unexpected body %v", body)
	}

	rr = send("admin-token", `{"status":"pending"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "invalid_transition" || body["from"] != "confirmed" || body["to"] != "pending" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestAdminOrderHandlersDelete(t *testing.T) {
	var captured services.DeleteOrderCommand
	svc := &stubOrderService{
		deleteFn: func(_ context.Context, cmd services.DeleteOrderCommand) error {
			captured = cmd
			return nil
		},
	}
	router := chi.NewRouter()
	router.Route("/admin", NewAdminOrderHandlers(newTestAuthenticator(), svc).Routes)

	req := httptest.NewRequest(http.MethodDelete, "/admin/orders/ord-9", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if captured.OrderID != "ord-9" || captured.RequesterRole != auth.RoleAdmin || captured.ActorID != "admin-1" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestAdminOrderHandlersInternalTransition(t *testing.T) {
	var captured services.TransitionCommand
	svc := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.TransitionCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}
	withService := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithServiceIdentity(r.Context(), &auth.ServiceIdentity{Subject: "1234", Email: "fulfilment@furnishop.iam.gserviceaccount.com"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	h := NewAdminOrderHandlers(nil, svc)

	router := chi.NewRouter()
	router.With(withService).Route("/internal", h.InternalRoutes)
	req := httptest.NewRequest(http.MethodPost, "/internal/orders/ord-2/status", strings.NewReader(`{"status":"completed"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ActorID != "service:fulfilment@furnishop.iam.gserviceaccount.com" {
		t.Fatalf("unexpected actor %s", captured.ActorID)
	}

	bare := chi.NewRouter()
	bare.Route("/internal", h.InternalRoutes)
	rr = httptest.NewRecorder()
	bare.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/orders/ord-2/status", strings.NewReader(`{"status":"completed"}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without service identity, got %d", rr.Code)
	}
}
