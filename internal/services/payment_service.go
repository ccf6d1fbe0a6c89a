package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/payments"
	"github.com/furnishop/api/internal/repositories"
)

// PaymentServiceDeps wires the gateway and order collaborators.
type PaymentServiceDeps struct {
	Orders       repositories.OrderRepository
	OrderService OrderService
	Gateway      payments.Gateway
	Events       OrderEventPublisher
	Clock        func() time.Time
	StoreName    string
	Logger       func(context.Context, string, map[string]any)
}

type paymentService struct {
	orders    repositories.OrderRepository
	lifecycle OrderService
	gateway   payments.Gateway
	events    OrderEventPublisher
	now       func() time.Time
	storeName string
	logger    func(context.Context, string, map[string]any)
}

// NewPaymentService constructs the payment reconciliation service.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("payment service: order repository is required")
	case deps.OrderService == nil:
		return nil, errors.New("payment service: order service is required")
	case deps.Gateway == nil:
		return nil, errors.New("payment service: gateway is required")
	case deps.Clock == nil:
		return nil, errors.New("payment service: clock is required")
	}
	storeName := strings.TrimSpace(deps.StoreName)
	if storeName == "" {
		storeName = "Furnishop"
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentService{
		orders:    deps.Orders,
		lifecycle: deps.OrderService,
		gateway:   deps.Gateway,
		events:    deps.Events,
		now:       func() time.Time { return deps.Clock().UTC() },
		storeName: storeName,
		logger:    logger,
	}, nil
}

// Initiate creates a gateway payment for a pending online order. The order is only touched
// after the gateway accepted the request, so failures leave it unpaid and retryable.
func (s *paymentService) Initiate(ctx context.Context, cmd InitiatePaymentCommand) (PaymentSession, error) {
	code := strings.TrimSpace(cmd.OrderCode)
	if code == "" {
		return PaymentSession{}, fmt.Errorf("%w: order code is required", ErrValidation)
	}
	order, err := s.orders.FindByCode(ctx, code)
	if err != nil {
		return PaymentSession{}, translateRepoError(err, ErrOrderNotFound)
	}
	if !canAccessOrder(order, cmd.ActorID, cmd.GuestToken, false) {
		return PaymentSession{}, ErrOrderNotFound
	}
	if order.PaymentMethod != domain.PaymentMethodOnlinePayment {
		return PaymentSession{}, ErrWrongPaymentMethod
	}
	if order.Status != domain.OrderStatusPending ||
		(order.PaymentStatus != domain.PaymentStatusUnpaid && order.PaymentStatus != domain.PaymentStatusPending) {
		return PaymentSession{}, fmt.Errorf("%w: order %s is not awaiting payment", ErrInvalidTransition, code)
	}
	if order.TotalAmount <= 0 {
		return PaymentSession{}, fmt.Errorf("%w: order %s has nothing to pay", ErrValidation, code)
	}

	now := s.now()
	transID := s.gateway.NewTransID(now)
	items := make([]payments.Item, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payments.Item{
			VariationID: item.VariationID,
			Name:        item.Name,
			Price:       item.UnitPriceAtPurchase,
			Quantity:    item.Quantity,
		})
	}

	result, err := s.gateway.CreatePayment(ctx, payments.CreateRequest{
		TransID:     transID,
		AppUser:     firstNonEmpty(order.OwnerID, "guest"),
		Amount:      order.TotalAmount,
		Description: fmt.Sprintf("%s - payment for order #%s", s.storeName, order.OrderCode),
		Items:       items,
		EmbedData:   map[string]string{"orderCode": order.OrderCode},
		RequestedAt: now,
	})
	if err != nil {
		s.logger(ctx, "payments.initiate_failed", map[string]any{
			"orderId": order.ID,
			"transId": transID,
			"error":   err.Error(),
		})
		return PaymentSession{}, fmt.Errorf("%w: %w", ErrGatewayFailure, err)
	}

	updated, err := s.orders.AttachPayment(ctx, repositories.OrderPaymentAttachment{
		OrderID:               order.ID,
		GatewayTransID:        transID,
		GatewayTransactionRef: result.TransToken,
		PaymentURL:            result.OrderURL,
		UpdatedAt:             now,
	})
	if err != nil {
		s.logger(ctx, "payments.attach_failed", map[string]any{"orderId": order.ID, "transId": transID, "error": err.Error()})
		return PaymentSession{}, translateRepoError(err, ErrOrderNotFound)
	}

	s.logger(ctx, "payments.initiated", map[string]any{"orderId": order.ID, "transId": transID, "amount": order.TotalAmount})
	if s.events != nil {
		event := OrderEvent{
			Type:          domain.OrderEventPaymentUpdated,
			OrderID:       updated.ID,
			OrderCode:     updated.OrderCode,
			Status:        updated.Status,
			PaymentStatus: updated.PaymentStatus,
			ActorID:       cmd.ActorID,
			OccurredAt:    now,
		}
		if err := s.events.PublishOrderEvent(context.WithoutCancel(ctx), event); err != nil {
			s.logger(ctx, "payments.event_publish_failed", map[string]any{"orderId": updated.ID, "error": err.Error()})
		}
	}

	return PaymentSession{
		OrderCode:      updated.OrderCode,
		GatewayTransID: transID,
		PaymentURL:     result.OrderURL,
		TransToken:     result.TransToken,
		Amount:         updated.TotalAmount,
	}, nil
}

// HandleCallback verifies and applies a gateway callback. Nothing is decoded or mutated when
// the MAC does not match. Replays of an already settled transaction succeed without changes.
func (s *paymentService) HandleCallback(ctx context.Context, input CallbackInput) (CallbackOutcome, error) {
	event, err := s.gateway.ParseCallback(payments.CallbackPayload{Data: input.Data, MAC: input.MAC})
	if err != nil {
		if errors.Is(err, payments.ErrInvalidMAC) {
			s.logger(ctx, "payments.callback_invalid_mac", map[string]any{"dataLength": len(input.Data)})
			return CallbackOutcome{}, ErrInvalidSignature
		}
		s.logger(ctx, "payments.callback_malformed", map[string]any{"error": err.Error()})
		return CallbackOutcome{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	succeeded := event.Succeeded()
	if succeeded && event.Amount > 0 {
		// A paid amount that differs from the order total is never accepted as payment; the
		// order is settled as failed and the mismatch is logged for a manual refund.
		order, err := s.orders.FindByGatewayTransID(ctx, event.TransID)
		if err != nil {
			s.logger(ctx, "payments.callback_unresolved", map[string]any{
				"transId":    event.TransID,
				"returnCode": event.ReturnCode,
				"error":      err.Error(),
			})
			return CallbackOutcome{}, translateRepoError(err, ErrOrderNotFound)
		}
		if event.Amount != order.TotalAmount {
			s.logger(ctx, "payments.callback_amount_mismatch", map[string]any{
				"orderId":  order.ID,
				"transId":  event.TransID,
				"expected": order.TotalAmount,
				"received": event.Amount,
			})
			succeeded = false
		}
	}

	result, err := s.lifecycle.SettlePayment(ctx, SettlePaymentCommand{
		GatewayTransID: event.TransID,
		Succeeded:      succeeded,
		GatewayRef:     event.GatewayTransID,
		ReturnCode:     event.ReturnCode,
	})
	if err != nil {
		s.logger(ctx, "payments.callback_unresolved", map[string]any{
			"transId":    event.TransID,
			"returnCode": event.ReturnCode,
			"error":      err.Error(),
		})
		return CallbackOutcome{}, err
	}

	order := result.Order
	s.logger(ctx, "payments.callback_handled", map[string]any{
		"orderId":       order.ID,
		"transId":       event.TransID,
		"changed":       result.Changed,
		"paymentStatus": string(order.PaymentStatus),
	})
	return CallbackOutcome{
		OrderCode:     order.OrderCode,
		Changed:       result.Changed,
		PaymentStatus: order.PaymentStatus,
		OrderStatus:   order.Status,
	}, nil
}

// Status returns the public payment and order status for an order code.
func (s *paymentService) Status(ctx context.Context, orderCode string) (PaymentStatusView, error) {
	code := strings.TrimSpace(orderCode)
	if code == "" {
		return PaymentStatusView{}, fmt.Errorf("%w: orderCode is required", ErrValidation)
	}
	order, err := s.orders.FindByCode(ctx, code)
	if err != nil {
		return PaymentStatusView{}, translateRepoError(err, ErrOrderNotFound)
	}
	return PaymentStatusView{
		OrderCode:     order.OrderCode,
		PaymentStatus: order.PaymentStatus,
		OrderStatus:   order.Status,
	}, nil
}
