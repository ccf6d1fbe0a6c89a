package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/payments"
)

func (f *fixture) onlineOrder(t *testing.T, stock, qty int) (Order, PaymentSession) {
	t.Helper()
	f.seedVariation("sofa", 8_000_000, 0, stock)
	key := CartKey{UserID: "user-1"}
	f.fillCart(t, key, map[string]int{"sofa": qty})
	order := f.checkout(t, key, "online_payment")
	session, err := f.payments.Initiate(context.Background(), InitiatePaymentCommand{OrderCode: order.OrderCode, ActorID: "user-1"})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return order, session
}

// callback signs a gateway callback reporting the full order total as paid.
func (f *fixture) callback(t *testing.T, transID string, returnCode int) CallbackInput {
	t.Helper()
	amount := int64(16_000_000)
	if order, err := f.store.Orders().FindByGatewayTransID(context.Background(), transID); err == nil {
		amount = order.TotalAmount
	}
	return f.callbackWithAmount(t, transID, returnCode, amount)
}

func (f *fixture) callbackWithAmount(t *testing.T, transID string, returnCode int, amount int64) CallbackInput {
	t.Helper()
	payload, err := f.signer.EncodeCallback(payments.CallbackEvent{
		TransID:        transID,
		ReturnCode:     returnCode,
		GatewayTransID: "240310000123",
		Amount:         amount,
	})
	if err != nil {
		t.Fatalf("encode callback: %v", err)
	}
	return CallbackInput{Data: payload.Data, MAC: payload.MAC}
}

func TestPaymentService_Initiate(t *testing.T) {
	f := newFixture(t)
	order, session := f.onlineOrder(t, 5, 2)

	if session.GatewayTransID != "260310_0001" || session.PaymentURL == "" || session.Amount != 16_000_000 {
		t.Fatalf("unexpected session %+v", session)
	}
	if len(f.gateway.requests) != 1 {
		t.Fatalf("expected one gateway request, got %d", len(f.gateway.requests))
	}
	req := f.gateway.requests[0]
	if req.Amount != 16_000_000 || req.AppUser != "user-1" || req.EmbedData["orderCode"] != order.OrderCode {
		t.Fatalf("unexpected gateway request %+v", req)
	}
	if len(req.Items) != 1 || req.Items[0].Price != 8_000_000 || req.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %+v", req.Items)
	}

	stored, err := f.store.Orders().FindByCode(context.Background(), order.OrderCode)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.PaymentStatus != domain.PaymentStatusPending || stored.GatewayTransID != session.GatewayTransID {
		t.Fatalf("payment not attached: %+v", stored)
	}
	if stored.Status != domain.OrderStatusPending {
		t.Fatalf("initiation must not change order status, got %s", stored.Status)
	}

	again, err := f.payments.Initiate(context.Background(), InitiatePaymentCommand{OrderCode: order.OrderCode, ActorID: "user-1"})
	if err != nil {
		t.Fatalf("re-initiate: %v", err)
	}
	if again.GatewayTransID == session.GatewayTransID {
		t.Fatal("re-initiation should allocate a new transaction id")
	}
	resolved, err := f.store.Orders().FindByGatewayTransID(context.Background(), session.GatewayTransID)
	if err != nil || resolved.ID != order.ID {
		t.Fatalf("superseded transaction id should still resolve: %v", err)
	}
}

func TestPaymentService_LateCallbackForSupersededTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order, first := f.onlineOrder(t, 5, 2)
	second, err := f.payments.Initiate(ctx, InitiatePaymentCommand{OrderCode: order.OrderCode, ActorID: "user-1"})
	if err != nil {
		t.Fatalf("re-initiate: %v", err)
	}
	if second.GatewayTransID == first.GatewayTransID {
		t.Fatal("expected a fresh transaction id")
	}

	outcome, err := f.payments.HandleCallback(ctx, f.callback(t, first.GatewayTransID, payments.ReturnCodeSuccess))
	if err != nil {
		t.Fatalf("callback for first transaction: %v", err)
	}
	if !outcome.Changed || outcome.OrderStatus != domain.OrderStatusConfirmed || outcome.PaymentStatus != domain.PaymentStatusCompleted {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	replay, err := f.payments.HandleCallback(ctx, f.callback(t, second.GatewayTransID, payments.ReturnCodeSuccess))
	if err != nil {
		t.Fatalf("callback for second transaction: %v", err)
	}
	if replay.Changed {
		t.Fatal("second settlement must not change a paid order")
	}
	if f.stock(t, "sofa") != 3 {
		t.Fatalf("expected stock 3, got %d", f.stock(t, "sofa"))
	}
}

func TestPaymentService_InitiateRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedVariation("a", 1000, 0, 10)
	key := CartKey{UserID: "user-1"}
	f.fillCart(t, key, map[string]int{"a": 1})
	cod := f.checkout(t, key, "cod")

	if _, err := f.payments.Initiate(ctx, InitiatePaymentCommand{OrderCode: cod.OrderCode, ActorID: "user-1"}); !errors.Is(err, ErrWrongPaymentMethod) {
		t.Fatalf("expected wrong method, got %v", err)
	}
	if _, err := f.payments.Initiate(ctx, InitiatePaymentCommand{OrderCode: cod.OrderCode, ActorID: "intruder"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found for foreign order, got %v", err)
	}
	if _, err := f.payments.Initiate(ctx, InitiatePaymentCommand{OrderCode: ""}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation, got %v", err)
	}

	f.fillCart(t, key, map[string]int{"a": 1})
	online := f.checkout(t, key, "online_payment")
	if _, err := f.orders.Transition(ctx, TransitionCommand{OrderID: online.ID, NewStatus: "canceled"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.payments.Initiate(ctx, InitiatePaymentCommand{OrderCode: online.OrderCode, ActorID: "user-1"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestPaymentService_GatewayFailureLeavesOrderUnpaid(t *testing.T) {
	f := newFixture(t)
	f.seedVariation("a", 1000, 0, 10)
	key := CartKey{GuestToken: "guest-1"}
	f.fillCart(t, key, map[string]int{"a": 1})
	order := f.checkout(t, key, "online_payment")

	gatewayErr := &payments.GatewayError{ReturnCode: 2, ReturnMessage: "merchant suspended"}
	f.gateway.createFn = func(context.Context, payments.CreateRequest) (payments.CreateResult, error) {
		return payments.CreateResult{}, gatewayErr
	}

	_, err := f.payments.Initiate(context.Background(), InitiatePaymentCommand{OrderCode: order.OrderCode, GuestToken: "guest-1"})
	if !errors.Is(err, ErrGatewayFailure) || !errors.Is(err, payments.ErrGatewayRejected) {
		t.Fatalf("expected gateway failure, got %v", err)
	}
	stored, _ := f.store.Orders().FindByCode(context.Background(), order.OrderCode)
	if stored.PaymentStatus != domain.PaymentStatusUnpaid || stored.GatewayTransID != "" {
		t.Fatalf("order should stay unpaid: %+v", stored)
	}
}

func TestPaymentService_CallbackSuccessIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order, session := f.onlineOrder(t, 5, 2)
	input := f.callback(t, session.GatewayTransID, payments.ReturnCodeSuccess)

	outcome, err := f.payments.HandleCallback(ctx, input)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if !outcome.Changed || outcome.PaymentStatus != domain.PaymentStatusCompleted || outcome.OrderStatus != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	first, _ := f.store.Orders().FindByCode(ctx, order.OrderCode)

	for range 3 {
		replay, err := f.payments.HandleCallback(ctx, input)
		if err != nil {
			t.Fatalf("replay: %v", err)
		}
		if replay.Changed {
			t.Fatal("replayed callback must not change the order")
		}
	}
	after, _ := f.store.Orders().FindByCode(ctx, order.OrderCode)
	if len(after.StatusHistory) != len(first.StatusHistory) || after.Status != domain.OrderStatusConfirmed {
		t.Fatalf("replay changed the order: %+v", after)
	}
	if f.stock(t, "sofa") != 3 {
		t.Fatalf("expected stock 3, got %d", f.stock(t, "sofa"))
	}

	view, err := f.payments.Status(ctx, order.OrderCode)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.PaymentStatus != domain.PaymentStatusCompleted || view.OrderStatus != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected status %+v", view)
	}
}

func TestPaymentService_ConcurrentCallbacksApplyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order, session := f.onlineOrder(t, 5, 1)
	input := f.callback(t, session.GatewayTransID, 2)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.payments.HandleCallback(ctx, input)
			if err != nil {
				t.Errorf("callback: %v", err)
				return
			}
			if outcome.Changed {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if changed != 1 {
		t.Fatalf("expected exactly one applied callback, got %d", changed)
	}
	stored, _ := f.store.Orders().FindByCode(ctx, order.OrderCode)
	if stored.Status != domain.OrderStatusCanceled || stored.PaymentStatus != domain.PaymentStatusFailed {
		t.Fatalf("unexpected state %s/%s", stored.Status, stored.PaymentStatus)
	}
	if f.stock(t, "sofa") != 5 {
		t.Fatalf("failed payment should release stock exactly once, got %d", f.stock(t, "sofa"))
	}
}

func TestPaymentService_CallbackRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order, session := f.onlineOrder(t, 5, 1)

	input := f.callback(t, session.GatewayTransID, payments.ReturnCodeSuccess)
	input.MAC = f.signer.SignCallback(input.Data + "tampered")
	if _, err := f.payments.HandleCallback(ctx, input); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	stored, _ := f.store.Orders().FindByCode(ctx, order.OrderCode)
	if stored.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("invalid MAC must not mutate the order, got %s", stored.PaymentStatus)
	}

	malformed := CallbackInput{Data: "not-base64!", MAC: f.signer.SignCallback("not-base64!")}
	if _, err := f.payments.HandleCallback(ctx, malformed); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation, got %v", err)
	}

	unknown := f.callback(t, "260310_9999", payments.ReturnCodeSuccess)
	if _, err := f.payments.HandleCallback(ctx, unknown); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPaymentService_PaidAfterCancelKeepsOrderCanceled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order, session := f.onlineOrder(t, 5, 1)
	if _, err := f.orders.Transition(ctx, TransitionCommand{OrderID: order.ID, NewStatus: "canceled"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	outcome, err := f.payments.HandleCallback(ctx, f.callback(t, session.GatewayTransID, payments.ReturnCodeSuccess))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if outcome.OrderStatus != domain.OrderStatusCanceled || outcome.PaymentStatus != domain.PaymentStatusCompleted {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if f.stock(t, "sofa") != 5 {
		t.Fatalf("stock must stay released, got %d", f.stock(t, "sofa"))
	}
}

func TestPaymentService_StatusUnknownOrder(t *testing.T) {
	f := newFixture(t)
	if _, err := f.payments.Status(context.Background(), "FN-MISSING"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.payments.Status(context.Background(), " "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
}

func TestPaymentService_AmountMismatchSettlesAsFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order, session := f.onlineOrder(t, 5, 2)

	outcome, err := f.payments.HandleCallback(ctx, f.callbackWithAmount(t, session.GatewayTransID, payments.ReturnCodeSuccess, 1_000))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if !outcome.Changed || outcome.PaymentStatus != domain.PaymentStatusFailed || outcome.OrderStatus != domain.OrderStatusCanceled {
		t.Fatalf("underpaid callback must not confirm the order: %+v", outcome)
	}
	stored, _ := f.store.Orders().FindByCode(ctx, order.OrderCode)
	if stored.Status != domain.OrderStatusCanceled {
		t.Fatalf("expected canceled, got %s", stored.Status)
	}
	if f.stock(t, "sofa") != 5 {
		t.Fatalf("stock must be released, got %d", f.stock(t, "sofa"))
	}
}
