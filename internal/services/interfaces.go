package services

import (
	"context"

	domain "github.com/furnishop/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	CartKey            = domain.CartKey
	Variation          = domain.Variation
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PaymentMethod      = domain.PaymentMethod
	PaymentStatus      = domain.PaymentStatus
	ShippingAddress    = domain.ShippingAddress
	StatusHistoryEntry = domain.StatusHistoryEntry
	Promotion          = domain.Promotion
	OrderEvent         = domain.OrderEvent
)

// CatalogService resolves variations against the live catalog in batches.
type CatalogService interface {
	// Lookup returns the variation or ErrNotFound.
	Lookup(ctx context.Context, variationID string) (Variation, error)
	// LookupMany returns the variations that resolve; unknown ids are absent from the map.
	LookupMany(ctx context.Context, variationIDs []string) (map[string]Variation, error)
}

// InventoryService owns stock counters.
type InventoryService interface {
	Reserve(ctx context.Context, variationID string, quantity int) error
	Release(ctx context.Context, variationID string, quantity int) error
	// ReserveLines reserves every line or none of them.
	ReserveLines(ctx context.Context, lines []StockLine) error
	// ReleaseLines returns every line to stock, continuing past individual failures.
	ReleaseLines(ctx context.Context, lines []StockLine) error
}

// PromotionService validates coupons and tracks usage.
type PromotionService interface {
	Apply(ctx context.Context, code string, subtotal int64) (PromotionApplication, error)
	Consume(ctx context.Context, code string) error
	Release(ctx context.Context, code string) error
}

// CartService manages guest and user carts.
type CartService interface {
	GetCart(ctx context.Context, key CartKey) (CartView, error)
	AddItem(ctx context.Context, cmd CartItemCommand) (Cart, error)
	UpdateItem(ctx context.Context, cmd CartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, key CartKey, variationID string) (Cart, error)
	RemoveItems(ctx context.Context, key CartKey, variationIDs []string) (Cart, error)
	Clear(ctx context.Context, key CartKey) error
	MergeOnLogin(ctx context.Context, guestToken, userID string) (MergeResult, error)
}

// OrderService owns the order lifecycle.
type OrderService interface {
	CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetByCode(ctx context.Context, cmd GetOrderQuery) (Order, error)
	Transition(ctx context.Context, cmd TransitionCommand) (Order, error)
	Delete(ctx context.Context, cmd DeleteOrderCommand) error
	// SettlePayment applies a gateway result to the order identified by its gateway transaction id.
	SettlePayment(ctx context.Context, cmd SettlePaymentCommand) (SettlementResult, error)
}

// PaymentService drives online payments.
type PaymentService interface {
	Initiate(ctx context.Context, cmd InitiatePaymentCommand) (PaymentSession, error)
	HandleCallback(ctx context.Context, payload CallbackInput) (CallbackOutcome, error)
	Status(ctx context.Context, orderCode string) (PaymentStatusView, error)
}

// OrderEventPublisher emits committed order changes.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// StockLine is a quantity of one variation.
type StockLine struct {
	VariationID string
	Quantity    int
}

// PromotionApplication is the outcome of applying a coupon to a subtotal.
type PromotionApplication struct {
	Code           string
	Type           domain.DiscountType
	Value          float64
	DiscountAmount int64
	Tracked        bool
}

// CartItemCommand adds or sets a cart line.
type CartItemCommand struct {
	Key         CartKey
	VariationID string
	Quantity    int
}

// CartView is a cart priced against the live catalog.
type CartView struct {
	Cart        Cart
	Lines       []CartLineView
	Subtotal    int64
	Currency    string
	HasProblems bool
}

// CartLineView prices one cart line.
type CartLineView struct {
	VariationID string
	ProductID   string
	Name        string
	Quantity    int
	UnitPrice   int64
	LineTotal   int64
	Stock       int
	Available   bool
}

// MergeResult reports the outcome of merging a guest cart at login.
type MergeResult struct {
	Cart   Cart
	Merged bool

	// Dropped lists guest variation ids that no longer resolve to a sellable product.
	Dropped []string
}

// CreateOrderCommand converts the caller's cart into an order.
type CreateOrderCommand struct {
	Key             CartKey
	ShippingAddress ShippingAddress
	PaymentMethod   string
	CouponCode      string

	// ClientTotal is accepted for logging only; totals are always recomputed.
	ClientTotal *int64
}

// GetOrderQuery loads one order for a caller.
type GetOrderQuery struct {
	OrderCode  string
	ActorID    string
	GuestToken string
	IsAdmin    bool
}

// TransitionCommand requests a status change.
type TransitionCommand struct {
	OrderID   string
	NewStatus string
	Note      string
	ActorID   string
}

// DeleteOrderCommand removes an order.
type DeleteOrderCommand struct {
	OrderID       string
	ActorID       string
	RequesterRole string
}

// SettlePaymentCommand carries a verified gateway result.
type SettlePaymentCommand struct {
	GatewayTransID string
	Succeeded      bool
	GatewayRef     string
	ReturnCode     int
}

// SettlementResult describes what a settlement changed.
type SettlementResult struct {
	Order   Order
	Changed bool
}

// InitiatePaymentCommand starts an online payment for an order.
type InitiatePaymentCommand struct {
	OrderCode  string
	ActorID    string
	GuestToken string
}

// PaymentSession is returned to the shopper after the gateway accepted the payment.
type PaymentSession struct {
	OrderCode      string
	GatewayTransID string
	PaymentURL     string
	TransToken     string
	Amount         int64
}

// CallbackInput is the raw gateway callback body.
type CallbackInput struct {
	Data string
	MAC  string
}

// CallbackOutcome summarises how a callback was handled.
type CallbackOutcome struct {
	OrderCode     string
	Changed       bool
	PaymentStatus PaymentStatus
	OrderStatus   OrderStatus
}

// PaymentStatusView is the public status of an order.
type PaymentStatusView struct {
	OrderCode     string
	PaymentStatus PaymentStatus
	OrderStatus   OrderStatus
}
