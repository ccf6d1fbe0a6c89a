package domain

import (
	"slices"
	"time"
)

// CartOwnerKind distinguishes authenticated carts from anonymous guest carts.
type CartOwnerKind string

const (
	// CartOwnerUser marks a cart owned by an authenticated user.
	CartOwnerUser CartOwnerKind = "user"
	// CartOwnerGuest marks a cart owned by an anonymous session token.
	CartOwnerGuest CartOwnerKind = "guest"
)

// CartKey identifies the owner of a cart. Exactly one of UserID or GuestToken is used; when both
// are supplied the authenticated user wins.
type CartKey struct {
	UserID     string
	GuestToken string
}

// Cart is the mutable shopping cart held for a user or a guest session.
type Cart struct {
	ID        string
	OwnerKind CartOwnerKind
	OwnerID   string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem is a single variation line. Quantity is cumulative per variation.
type CartItem struct {
	VariationID string
	Quantity    int
	AddedAt     time.Time
}

// Variation is the catalog view of a purchasable SKU, including the parent product state.
type Variation struct {
	ID        string
	ProductID string
	Name      string
	Price     int64
	SalePrice int64
	Stock     int
	Sellable  bool
}

// UnitPrice returns the sale price when set, falling back to the list price.
func (v Variation) UnitPrice() int64 {
	if v.SalePrice > 0 {
		return v.SalePrice
	}
	return v.Price
}

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	// OrderStatusPending is the initial state after checkout.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the order was accepted (paid or approved).
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipping indicates the order left the warehouse.
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusCompleted is terminal: delivered and settled.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCanceled is terminal: stock was returned.
	OrderStatusCanceled OrderStatus = "canceled"
)

// IsTerminal reports whether no further transition is permitted from the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCanceled
}

// PaymentMethod enumerates accepted payment methods.
type PaymentMethod string

const (
	PaymentMethodCOD           PaymentMethod = "cod"
	PaymentMethodBankTransfer  PaymentMethod = "bank_transfer"
	PaymentMethodOnlinePayment PaymentMethod = "online_payment"
)

// PaymentStatus tracks the payment side of an order independently of fulfilment.
type PaymentStatus string

const (
	// PaymentStatusUnpaid is the status before any gateway interaction.
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusPending means a gateway transaction was created and awaits callback.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCompleted means the gateway reported success.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed means the gateway reported failure.
	PaymentStatusFailed PaymentStatus = "failed"
)

// ShippingAddress captures delivery information required at checkout.
type ShippingAddress struct {
	FullName string
	Phone    string
	Email    string
	Street   string
	Ward     string
	District string
	City     string
}

// OrderItem is the immutable snapshot of a purchased line.
type OrderItem struct {
	VariationID         string
	ProductID           string
	Name                string
	Quantity            int
	UnitPriceAtPurchase int64
}

// LineTotal returns quantity multiplied by the snapshotted unit price.
func (i OrderItem) LineTotal() int64 {
	return int64(i.Quantity) * i.UnitPriceAtPurchase
}

// StatusHistoryEntry records a single status transition. Entries are append-only.
type StatusHistoryEntry struct {
	Status    OrderStatus
	Note      string
	Actor     string
	Timestamp time.Time
}

// OrderDiscount is the denormalised coupon record attached to an order for audit.
type OrderDiscount struct {
	Code   string
	Type   DiscountType
	Value  float64
	Amount int64
}

// Order is the persisted order record owned by the order state machine.
type Order struct {
	ID                    string
	OrderCode             string
	OwnerID               string
	GuestToken            string
	Items                 []OrderItem
	Subtotal              int64
	DiscountAmount        int64
	TotalAmount           int64
	Currency              string
	Discount              *OrderDiscount
	ShippingAddress       ShippingAddress
	Status                OrderStatus
	PaymentMethod         PaymentMethod
	PaymentStatus         PaymentStatus
	GatewayTransID        string
	GatewayTransactionRef string
	PaymentURL            string
	// GatewayTransIDs holds every transaction id attached to the order, oldest first. Earlier
	// ids stay resolvable so a late callback for a retried payment still finds the order.
	GatewayTransIDs []string
	StatusHistory   []StatusHistoryEntry
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AttachedTransIDs returns every gateway transaction id of the order without duplicates,
// including the current one.
func (o Order) AttachedTransIDs() []string {
	ids := make([]string, 0, len(o.GatewayTransIDs)+1)
	seen := make(map[string]struct{}, len(o.GatewayTransIDs)+1)
	for _, id := range append(slices.Clone(o.GatewayTransIDs), o.GatewayTransID) {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// DiscountType enumerates promotion discount kinds.
type DiscountType string

const (
	// DiscountPercentage applies Value percent of the subtotal, optionally capped.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed subtracts Value currency units.
	DiscountFixed DiscountType = "fixed"
)

// Promotion is the coupon definition consulted at checkout.
type Promotion struct {
	Code           string
	Type           DiscountType
	Value          float64
	MaxDiscount    int64
	MinOrderAmount int64
	UsageLimit     int
	UsedCount      int
	Active         bool
	StartsAt       time.Time
	EndsAt         time.Time
}

// OrderEventType names order lifecycle notifications.
type OrderEventType string

const (
	OrderEventCreated        OrderEventType = "order.created"
	OrderEventStatusChanged  OrderEventType = "order.status_changed"
	OrderEventPaymentUpdated OrderEventType = "order.payment_updated"
	OrderEventDeleted        OrderEventType = "order.deleted"
)

// OrderEvent is published after a committed order change.
type OrderEvent struct {
	Type           OrderEventType
	OrderID        string
	OrderCode      string
	Status         OrderStatus
	PreviousStatus OrderStatus
	PaymentStatus  PaymentStatus
	ActorID        string
	OccurredAt     time.Time
}
