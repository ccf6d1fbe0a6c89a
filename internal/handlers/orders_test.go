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
	"github.com/furnishop/api/internal/platform/auth"
	"github.com/furnishop/api/internal/services"
)

type stubOrderService struct {
	createFn     func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn        func(context.Context, services.GetOrderQuery) (services.Order, error)
	transitionFn func(context.Context, services.TransitionCommand) (services.Order, error)
	deleteFn     func(context.Context, services.DeleteOrderCommand) error
	settleFn     func(context.Context, services.SettlePaymentCommand) (services.SettlementResult, error)
}

func (s *stubOrderService) CreateFromCart(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetByCode(ctx context.Context, query services.GetOrderQuery) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Transition(ctx context.Context, cmd services.TransitionCommand) (services.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Delete(ctx context.Context, cmd services.DeleteOrderCommand) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cmd)
	}
	return errors.New("not implemented")
}

func (s *stubOrderService) SettlePayment(ctx context.Context, cmd services.SettlePaymentCommand) (services.SettlementResult, error) {
	if s.settleFn != nil {
		return s.settleFn(ctx, cmd)
	}
	return services.SettlementResult{}, errors.New("not implemented")
}

type stubPaymentService struct {
	initiateFn func(context.Context, services.InitiatePaymentCommand) (services.PaymentSession, error)
	callbackFn func(context.Context, services.CallbackInput) (services.CallbackOutcome, error)
	statusFn   func(context.Context, string) (services.PaymentStatusView, error)
}

func (s *stubPaymentService) Initiate(ctx context.Context, cmd services.InitiatePaymentCommand) (services.PaymentSession, error) {
	if s.initiateFn != nil {
		return s.initiateFn(ctx, cmd)
	}
	return services.PaymentSession{}, errors.New("not implemented")
}

func (s *stubPaymentService) HandleCallback(ctx context.Context, input services.CallbackInput) (services.CallbackOutcome, error) {
	if s.callbackFn != nil {
		return s.callbackFn(ctx, input)
	}
	return services.CallbackOutcome{}, errors.New("not implemented")
}

func (s *stubPaymentService) Status(ctx context.Context, orderCode string) (services.PaymentStatusView, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, orderCode)
	}
	return services.PaymentStatusView{}, errors.New("not implemented")
}

func sampleOrder() services.Order {
	created := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	return services.Order{
		ID:            "01JX0000000000000000000000",
		OrderCode:     "FS250602ABCD",
		Status:        domain.OrderStatusPending,
		PaymentMethod: domain.PaymentMethodCOD,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Items: []services.OrderItem{
			{VariationID: "var-sofa", ProductID: "prod-sofa", Name: "Linen sofa", Quantity: 2, UnitPriceAtPurchase: 4_500_000},
		},
		Subtotal:       9_000_000,
		DiscountAmount: 900_000,
		TotalAmount:    8_100_000,
		Currency:       "VND",
		Discount:       &domain.OrderDiscount{Code: "SPRING10", Type: domain.DiscountPercentage, Value: 10, Amount: 900_000},
		StatusHistory: []services.StatusHistoryEntry{
			{Status: domain.OrderStatusPending, Actor: "user-1", Timestamp: created},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func newOrderRouter(orders services.OrderService, payments services.PaymentService, mw ...func(http.Handler) http.Handler) chi.Router {
	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(newTestAuthenticator(), orders, payments, mw...).Routes)
	return router
}

func TestOrderHandlersCreateFromCart(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}

	body := `{
		"shippingAddress": {"fullName":"Mai Tran","phone":"0901234567","street":"12 Le Loi","ward":"Ben Nghe","district":"1","city":"HCMC"},
		"paymentMethod": "cod",
		"couponCode": "spring10",
		"totalAmount": 1
	}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set(auth.GuestTokenHeader, testGuestToken)
	rr := httptest.NewRecorder()
	newOrderRouter(svc, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/orders/FS250602ABCD" {
		t.Fatalf("unexpected location %s", loc)
	}
	if captured.Key.GuestToken != testGuestToken {
		t.Fatalf("expected guest key, got %+v", captured.Key)
	}
	if captured.ShippingAddress.City != "HCMC" || captured.PaymentMethod != "cod" || captured.CouponCode != "spring10" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.ClientTotal == nil || *captured.ClientTotal != 1 {
		t.Fatalf("expected client total forwarded, got %v", captured.ClientTotal)
	}

	resp := decodeBody(t, rr)
	if resp["totalAmount"] != float64(8_100_000) || resp["orderCode"] != "FS250602ABCD" {
		t.Fatalf("unexpected response %v", resp)
	}
	items := resp["items"].([]any)
	if line := items[0].(map[string]any); line["lineTotal"] != float64(9_000_000) {
		t.Fatalf("unexpected line %v", line)
	}
	if discount := resp["discount"].(map[string]any); discount["code"] != "SPRING10" {
		t.Fatalf("unexpected discount %v", discount)
	}
}

func TestOrderHandlersCreateErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"empty cart", services.ErrEmptyCart, http.StatusBadRequest, "validation_error"},
		{"coupon rejected", &services.PromotionError{Code: "OLD", Reason: services.PromotionExpired}, http.StatusBadRequest, "promotion_rejected"},
		{"product gone", &services.UnavailableError{VariationIDs: []string{"var-x"}}, http.StatusConflict, "product_unavailable"},
		{"stock race", fmt.Errorf("reserve: %w", &services.StockError{VariationID: "v", Requested: 2, Available: 0}), http.StatusConflict, "insufficient_stock"},
		{"invariant", services.ErrInvariantViolation, http.StatusConflict, "invariant_violation"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"paymentMethod":"cod"}`))
			req.Header.Set("Authorization", "Bearer user-token")
			rr := httptest.NewRecorder()
			newOrderRouter(svc, nil).ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if body := decodeBody(t, rr); body["error"] != tc.wantCode {
				t.Fatalf("expected %s, got %v", tc.wantCode, body["error"])
			}
		})
	}
}

func TestOrderHandlersGetOrderPassesCaller(t *testing.T) {
	var captured services.GetOrderQuery
	svc := &stubOrderService{
		getFn: func(_ context.Context, query services.GetOrderQuery) (services.Order, error) {
			captured = query
			if !query.IsAdmin && query.ActorID != "user-1" {
				return services.Order{}, services.ErrOrderNotFound
			}
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/orders/FS250602ABCD", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !captured.IsAdmin || captured.ActorID != "admin-1" || captured.OrderCode != "FS250602ABCD" {
		t.Fatalf("unexpected query %+v", captured)
	}

	req = httptest.NewRequest(http.MethodGet, "/orders/FS250602ABCD", nil)
	req.Header.Set(auth.GuestTokenHeader, testGuestToken)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for stranger, got %d", rr.Code)
	}
	if captured.GuestToken != testGuestToken {
		t.Fatalf("expected guest token forwarded, got %+v", captured)
	}
}

func TestOrderHandlersInitiatePayment(t *testing.T) {
	var captured services.InitiatePaymentCommand
	payments := &stubPaymentService{
		initiateFn: func(_ context.Context, cmd services.InitiatePaymentCommand) (services.PaymentSession, error) {
			captured = cmd
			if cmd.OrderCode == "FAIL" {
				return services.PaymentSession{}, fmt.Errorf("%w: return_code -54", services.ErrGatewayFailure)
			}
			return services.PaymentSession{
				OrderCode:      cmd.OrderCode,
				GatewayTransID: "250602_01JX",
				PaymentURL:     "https://gateway.test/pay/abc",
				Amount:         8_100_000,
			}, nil
		},
	}
	router := newOrderRouter(&stubOrderService{}, payments)

	req := httptest.NewRequest(http.MethodPost, "/orders/FS250602ABCD/payments", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ActorID != "user-1" || captured.OrderCode != "FS250602ABCD" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if body := decodeBody(t, rr); body["paymentUrl"] != "https://gateway.test/pay/abc" {
		t.Fatalf("unexpected body %v", body)
	}

	req = httptest.NewRequest(http.MethodPost, "/orders/FAIL/payments", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestOrderHandlersMutatingMiddlewareScope(t *testing.T) {
	var seen []string
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = append(seen, r.Method+" "+r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
	svc := &stubOrderService{
		getFn: func(context.Context, services.GetOrderQuery) (services.Order, error) { return sampleOrder(), nil },
		createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(svc, nil, mw)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/orders/FS250602ABCD", nil),
		httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"paymentMethod":"cod"}`)),
	} {
		req.Header.Set(auth.GuestTokenHeader, testGuestToken)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}
	if len(seen) != 1 || seen[0] != "POST /orders" {
		t.Fatalf("expected middleware on POST only, got %v", seen)
	}
}
