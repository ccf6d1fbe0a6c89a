package services

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/repositories"
)

const (
	defaultOrderCodeAttempts = 5
	maxConditionalAttempts   = 3
	maxNoteLength            = 500

	noteCreatedFromCart = "created from cart"
	notePaymentSucceed  = "payment completed"
	notePaymentFailed   = "payment failed"
)

// RoleAdmin is the only role allowed to delete orders.
const RoleAdmin = "admin"

// orderTransitions lists the statuses reachable from each non-terminal status.
var orderTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusConfirmed, domain.OrderStatusCanceled},
	domain.OrderStatusConfirmed: {domain.OrderStatusShipping, domain.OrderStatusCanceled},
	domain.OrderStatusShipping:  {domain.OrderStatusCompleted, domain.OrderStatusCanceled},
}

// CanTransition reports whether the state table allows from -> to.
func CanTransition(from, to OrderStatus) bool {
	return slices.Contains(orderTransitions[from], to)
}

// OrderServiceDeps wires the collaborators of the order state machine.
type OrderServiceDeps struct {
	Orders           repositories.OrderRepository
	Carts            repositories.CartRepository
	PurchaseCounters repositories.PurchaseCounterRepository
	Catalog          CatalogService
	Inventory        InventoryService
	Promotions       PromotionService
	Events           OrderEventPublisher
	Clock            func() time.Time
	IDGenerator      func() string

	// OrderCodeGenerator returns a candidate order code. Collisions are retried.
	OrderCodeGenerator func(now time.Time) string
	OrderCodeAttempts  int
	Currency           string
	Logger             func(context.Context, string, map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	carts      repositories.CartRepository
	counters   repositories.PurchaseCounterRepository
	catalog    CatalogService
	inventory  InventoryService
	promotions PromotionService
	events     OrderEventPublisher
	now        func() time.Time
	newID      func() string
	newCode    func(time.Time) string
	codeTries  int
	currency   string
	notePolicy *bluemonday.Policy
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService constructs the order state machine.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Carts == nil:
		return nil, errors.New("order service: cart repository is required")
	case deps.PurchaseCounters == nil:
		return nil, errors.New("order service: purchase counter repository is required")
	case deps.Catalog == nil:
		return nil, errors.New("order service: catalog is required")
	case deps.Inventory == nil:
		return nil, errors.New("order service: inventory is required")
	case deps.Clock == nil:
		return nil, errors.New("order service: clock is required")
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	codeGen := deps.OrderCodeGenerator
	if codeGen == nil {
		codeGen = NewOrderCode
	}
	tries := deps.OrderCodeAttempts
	if tries <= 0 {
		tries = defaultOrderCodeAttempts
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		carts:      deps.Carts,
		counters:   deps.PurchaseCounters,
		catalog:    deps.Catalog,
		inventory:  deps.Inventory,
		promotions: deps.Promotions,
		events:     deps.Events,
		now:        func() time.Time { return deps.Clock().UTC() },
		newID:      idGen,
		newCode:    codeGen,
		codeTries:  tries,
		currency:   currency,
		notePolicy: bluemonday.StrictPolicy(),
		logger:     logger,
	}, nil
}

var orderCodeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewOrderCode returns a timestamp followed by a random suffix, e.g. FN260115103000-K3QZ7VA.
func NewOrderCode(now time.Time) string {
	var suffix [4]byte
	_, _ = rand.Read(suffix[:])
	return "FN" + now.UTC().Format("060102150405") + "-" + orderCodeEncoding.EncodeToString(suffix[:])
}

// CreateFromCart snapshots the caller's cart into a pending order. Stock is reserved before
// the order is persisted and returned if any later step fails.
func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	key := cmd.Key.Normalize()
	cartID := key.StorageID()
	if cartID == "" {
		return Order{}, fmt.Errorf("%w: cart owner is required", ErrValidation)
	}
	address := cmd.ShippingAddress.Normalize()
	if missing := address.MissingFields(); len(missing) > 0 {
		return Order{}, fmt.Errorf("%w: shipping address is missing or invalid: %s", ErrValidation, strings.Join(missing, ", "))
	}
	method, ok := domain.ParsePaymentMethod(cmd.PaymentMethod)
	if !ok {
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrValidation, cmd.PaymentMethod)
	}

	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, ErrEmptyCart
		}
		return Order{}, translateRepoError(err, ErrCartNotFound)
	}
	if len(cart.Items) == 0 {
		return Order{}, ErrEmptyCart
	}

	items, err := s.snapshotItems(ctx, cart.Items)
	if err != nil {
		return Order{}, err
	}
	var subtotal int64
	for _, item := range items {
		subtotal += item.LineTotal()
	}
	if cmd.ClientTotal != nil && *cmd.ClientTotal != subtotal {
		s.logger(ctx, "orders.client_total_ignored", map[string]any{
			"cartId":      cartID,
			"clientTotal": *cmd.ClientTotal,
			"subtotal":    subtotal,
		})
	}

	var application *PromotionApplication
	if code := strings.TrimSpace(cmd.CouponCode); code != "" {
		if s.promotions == nil {
			return Order{}, fmt.Errorf("%w: promotions are not configured", ErrUnavailable)
		}
		applied, err := s.promotions.Apply(ctx, code, subtotal)
		if err != nil {
			return Order{}, err
		}
		application = &applied
	}

	lines := stockLinesOf(items)
	if err := s.inventory.ReserveLines(ctx, lines); err != nil {
		return Order{}, err
	}
	rollback := func(reason string, cause error) {
		bg := context.WithoutCancel(ctx)
		if err := s.inventory.ReleaseLines(bg, lines); err != nil {
			s.logger(ctx, "orders.rollback_release_failed", map[string]any{"cartId": cartID, "error": err.Error()})
		}
		if application != nil && application.Tracked && reason != "promotion" {
			if err := s.promotions.Release(bg, application.Code); err != nil {
				s.logger(ctx, "orders.rollback_promotion_failed", map[string]any{"code": application.Code, "error": err.Error()})
			}
		}
		s.logger(ctx, "orders.create_rolled_back", map[string]any{"cartId": cartID, "stage": reason, "error": cause.Error()})
	}

	if application != nil && application.Tracked {
		if err := s.promotions.Consume(ctx, application.Code); err != nil {
			rollback("promotion", err)
			return Order{}, err
		}
	}

	now := s.now()
	order := Order{
		ID:              s.newID(),
		OwnerID:         key.UserID,
		GuestToken:      key.GuestToken,
		Items:           items,
		Subtotal:        subtotal,
		TotalAmount:     subtotal,
		Currency:        s.currency,
		ShippingAddress: address,
		Status:          domain.OrderStatusPending,
		PaymentMethod:   method,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		StatusHistory: []StatusHistoryEntry{{
			Status:    domain.OrderStatusPending,
			Note:      noteCreatedFromCart,
			Actor:     firstNonEmpty(key.UserID, "guest"),
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if application != nil {
		order.DiscountAmount = application.DiscountAmount
		order.TotalAmount = subtotal - application.DiscountAmount
		order.Discount = &domain.OrderDiscount{
			Code:   application.Code,
			Type:   application.Type,
			Value:  application.Value,
			Amount: application.DiscountAmount,
		}
	}

	if err := s.insertWithUniqueCode(ctx, &order); err != nil {
		rollback("persist", err)
		return Order{}, err
	}

	if err := s.carts.Delete(ctx, cartID); err != nil && !isRepoNotFound(err) {
		s.logger(ctx, "orders.cart_cleanup_failed", map[string]any{"cartId": cartID, "orderId": order.ID, "error": err.Error()})
	}

	s.logger(ctx, "orders.created", map[string]any{
		"orderId":   order.ID,
		"orderCode": order.OrderCode,
		"total":     order.TotalAmount,
		"lines":     len(order.Items),
	})
	s.publish(ctx, OrderEvent{
		Type:          domain.OrderEventCreated,
		OrderID:       order.ID,
		OrderCode:     order.OrderCode,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		ActorID:       key.UserID,
		OccurredAt:    now,
	})
	return order, nil
}

// snapshotItems re-resolves every cart line and copies the live unit price.
func (s *orderService) snapshotItems(ctx context.Context, cartItems []CartItem) ([]OrderItem, error) {
	ids := make([]string, 0, len(cartItems))
	for _, item := range cartItems {
		ids = append(ids, item.VariationID)
	}
	variations, err := s.catalog.LookupMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	var unavailable []string
	var shortage *StockError
	items := make([]OrderItem, 0, len(cartItems))
	for _, line := range cartItems {
		variation, ok := variations[line.VariationID]
		if !ok || !variation.Sellable {
			unavailable = append(unavailable, line.VariationID)
			continue
		}
		if variation.Stock < line.Quantity && shortage == nil {
			shortage = &StockError{VariationID: line.VariationID, Requested: line.Quantity, Available: variation.Stock}
		}
		items = append(items, OrderItem{
			VariationID:         variation.ID,
			ProductID:           variation.ProductID,
			Name:                variation.Name,
			Quantity:            line.Quantity,
			UnitPriceAtPurchase: variation.UnitPrice(),
		})
	}
	if len(unavailable) > 0 {
		return nil, &UnavailableError{VariationIDs: unavailable}
	}
	if shortage != nil {
		return nil, shortage
	}
	return items, nil
}

func (s *orderService) insertWithUniqueCode(ctx context.Context, order *Order) error {
	var lastErr error
	for attempt := 0; attempt < s.codeTries; attempt++ {
		order.OrderCode = s.newCode(order.CreatedAt)
		err := s.orders.Insert(ctx, *order)
		if err == nil {
			return nil
		}
		if !isRepoConflict(err) {
			return translateRepoError(err, nil)
		}
		lastErr = err
		s.logger(ctx, "orders.code_collision", map[string]any{"orderCode": order.OrderCode, "attempt": attempt + 1})
	}
	return fmt.Errorf("%w: could not allocate a unique order code: %v", ErrConflict, lastErr)
}

func (s *orderService) GetByCode(ctx context.Context, query GetOrderQuery) (Order, error) {
	code := strings.TrimSpace(query.OrderCode)
	if code == "" {
		return Order{}, fmt.Errorf("%w: order code is required", ErrValidation)
	}
	order, err := s.orders.FindByCode(ctx, code)
	if err != nil {
		return Order{}, translateRepoError(err, ErrOrderNotFound)
	}
	if !canAccessOrder(order, query.ActorID, query.GuestToken, query.IsAdmin) {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func canAccessOrder(order Order, actorID, guestToken string, isAdmin bool) bool {
	if isAdmin {
		return true
	}
	if actor := strings.TrimSpace(actorID); actor != "" && actor == order.OwnerID {
		return true
	}
	token := strings.TrimSpace(guestToken)
	return order.OwnerID == "" && token != "" && token == order.GuestToken
}

// Transition moves the order along the state table. Cancelling returns stock; completing
// updates purchase counters once per order.
func (s *orderService) Transition(ctx context.Context, cmd TransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	target, ok := domain.ParseOrderStatus(cmd.NewStatus)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrValidation, cmd.NewStatus)
	}
	note := s.cleanNote(cmd.Note)

	for attempt := 0; ; attempt++ {
		current, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return Order{}, translateRepoError(err, ErrOrderNotFound)
		}
		if current.Status == target {
			return Order{}, ErrNoChange
		}
		if !CanTransition(current.Status, target) {
			return Order{}, &TransitionError{From: current.Status, To: target}
		}

		now := s.now()
		updated, err := s.orders.UpdateStatus(ctx, repositories.OrderStatusUpdate{
			OrderID:        orderID,
			ExpectedStatus: current.Status,
			Status:         target,
			Entry: &StatusHistoryEntry{
				Status:    target,
				Note:      note,
				Actor:     strings.TrimSpace(cmd.ActorID),
				Timestamp: now,
			},
			UpdatedAt: now,
		})
		if err != nil {
			if isRepoConflict(err) && attempt+1 < maxConditionalAttempts {
				continue
			}
			return Order{}, translateRepoError(err, ErrOrderNotFound)
		}

		s.afterTransition(ctx, current.Status, updated)
		s.logger(ctx, "orders.transitioned", map[string]any{
			"orderId": orderID,
			"from":    string(current.Status),
			"to":      string(target),
			"actorId": cmd.ActorID,
		})
		s.publish(ctx, OrderEvent{
			Type:           domain.OrderEventStatusChanged,
			OrderID:        updated.ID,
			OrderCode:      updated.OrderCode,
			Status:         updated.Status,
			PreviousStatus: current.Status,
			PaymentStatus:  updated.PaymentStatus,
			ActorID:        cmd.ActorID,
			OccurredAt:     now,
		})
		return updated, nil
	}
}

// afterTransition runs the side effects owned by the state that was entered. It only runs for
// the writer whose conditional update succeeded.
func (s *orderService) afterTransition(ctx context.Context, from OrderStatus, order Order) {
	ctx = context.WithoutCancel(ctx)
	switch order.Status {
	case domain.OrderStatusCanceled:
		if from.IsTerminal() {
			return
		}
		s.releaseOrder(ctx, order)
	case domain.OrderStatusCompleted:
		quantities := make(map[string]int, len(order.Items))
		for _, item := range order.Items {
			quantities[item.ProductID] += item.Quantity
		}
		applied, err := s.counters.ApplyOnce(ctx, order.ID, quantities)
		if err != nil {
			s.logger(ctx, "orders.purchase_counters_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
			return
		}
		if !applied {
			s.logger(ctx, "orders.purchase_counters_already_applied", map[string]any{"orderId": order.ID})
		}
	}
}

// releaseOrder returns the order's stock and coupon use.
func (s *orderService) releaseOrder(ctx context.Context, order Order) {
	if err := s.inventory.ReleaseLines(ctx, stockLinesOf(order.Items)); err != nil {
		s.logger(ctx, "orders.stock_release_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
	}
	if order.Discount != nil && s.promotions != nil {
		if err := s.promotions.Release(ctx, order.Discount.Code); err != nil {
			s.logger(ctx, "orders.promotion_release_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		}
	}
}

// Delete removes an order. Only admins may delete and completed orders are permanent.
func (s *orderService) Delete(ctx context.Context, cmd DeleteOrderCommand) error {
	if !strings.EqualFold(strings.TrimSpace(cmd.RequesterRole), RoleAdmin) {
		return fmt.Errorf("%w: only admins may delete orders", ErrForbidden)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrValidation)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return translateRepoError(err, ErrOrderNotFound)
	}
	if order.Status == domain.OrderStatusCompleted {
		return fmt.Errorf("%w: completed orders cannot be deleted", ErrInvariantViolation)
	}
	if err := s.orders.Delete(ctx, orderID, order.Status); err != nil {
		return translateRepoError(err, ErrOrderNotFound)
	}
	if !order.Status.IsTerminal() {
		s.releaseOrder(context.WithoutCancel(ctx), order)
	}

	now := s.now()
	s.logger(ctx, "orders.deleted", map[string]any{"orderId": orderID, "status": string(order.Status), "actorId": cmd.ActorID})
	s.publish(ctx, OrderEvent{
		Type:           domain.OrderEventDeleted,
		OrderID:        order.ID,
		OrderCode:      order.OrderCode,
		PreviousStatus: order.Status,
		PaymentStatus:  order.PaymentStatus,
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
	})
	return nil
}

// SettlePayment applies a verified gateway result. Once the payment status is completed or
// failed the call is a no-op, and concurrent callers race on a conditional update so only the
// first one changes state.
func (s *orderService) SettlePayment(ctx context.Context, cmd SettlePaymentCommand) (SettlementResult, error) {
	transID := strings.TrimSpace(cmd.GatewayTransID)
	if transID == "" {
		return SettlementResult{}, fmt.Errorf("%w: gateway transaction id is required", ErrValidation)
	}

	for attempt := 0; ; attempt++ {
		order, err := s.orders.FindByGatewayTransID(ctx, transID)
		if err != nil {
			return SettlementResult{}, translateRepoError(err, ErrOrderNotFound)
		}
		if order.PaymentStatus == domain.PaymentStatusCompleted || order.PaymentStatus == domain.PaymentStatusFailed {
			return SettlementResult{Order: order}, nil
		}

		update := s.settlementUpdate(order, cmd.Succeeded)
		updated, err := s.orders.UpdateStatus(ctx, update)
		if err != nil {
			if isRepoConflict(err) && attempt+1 < maxConditionalAttempts {
				continue
			}
			return SettlementResult{}, translateRepoError(err, ErrOrderNotFound)
		}

		if updated.Status != order.Status {
			s.afterTransition(ctx, order.Status, updated)
		}
		if cmd.Succeeded && order.Status == domain.OrderStatusCanceled {
			s.logger(ctx, "orders.paid_after_cancel", map[string]any{"orderId": order.ID, "transId": transID})
		}
		s.logger(ctx, "orders.payment_settled", map[string]any{
			"orderId":       order.ID,
			"transId":       transID,
			"paymentStatus": string(updated.PaymentStatus),
			"status":        string(updated.Status),
			"returnCode":    cmd.ReturnCode,
		})

		eventType := domain.OrderEventPaymentUpdated
		if updated.Status != order.Status {
			eventType = domain.OrderEventStatusChanged
		}
		s.publish(ctx, OrderEvent{
			Type:           eventType,
			OrderID:        updated.ID,
			OrderCode:      updated.OrderCode,
			Status:         updated.Status,
			PreviousStatus: order.Status,
			PaymentStatus:  updated.PaymentStatus,
			ActorID:        "payment-gateway",
			OccurredAt:     update.UpdatedAt,
		})
		return SettlementResult{Order: updated, Changed: true}, nil
	}
}

func (s *orderService) settlementUpdate(order Order, succeeded bool) repositories.OrderStatusUpdate {
	now := s.now()
	update := repositories.OrderStatusUpdate{
		OrderID:               order.ID,
		ExpectedStatus:        order.Status,
		ExpectedPaymentStatus: order.PaymentStatus,
		Status:                order.Status,
		UpdatedAt:             now,
	}
	if succeeded {
		update.PaymentStatus = domain.PaymentStatusCompleted
		if CanTransition(order.Status, domain.OrderStatusConfirmed) {
			update.Status = domain.OrderStatusConfirmed
			update.Entry = &StatusHistoryEntry{Status: domain.OrderStatusConfirmed, Note: notePaymentSucceed, Actor: "payment-gateway", Timestamp: now}
		}
		return update
	}
	update.PaymentStatus = domain.PaymentStatusFailed
	if CanTransition(order.Status, domain.OrderStatusCanceled) {
		update.Status = domain.OrderStatusCanceled
		update.Entry = &StatusHistoryEntry{Status: domain.OrderStatusCanceled, Note: notePaymentFailed, Actor: "payment-gateway", Timestamp: now}
	}
	return update
}

func (s *orderService) publish(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(context.WithoutCancel(ctx), event); err != nil {
		s.logger(ctx, "orders.event_publish_failed", map[string]any{
			"orderId": event.OrderID,
			"type":    string(event.Type),
			"error":   err.Error(),
		})
	}
}

func (s *orderService) cleanNote(note string) string {
	clean := strings.TrimSpace(s.notePolicy.Sanitize(note))
	if len([]rune(clean)) > maxNoteLength {
		clean = string([]rune(clean)[:maxNoteLength])
	}
	return clean
}

func stockLinesOf(items []OrderItem) []StockLine {
	lines := make([]StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, StockLine{VariationID: item.VariationID, Quantity: item.Quantity})
	}
	return lines
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
