package repositories

import (
	"context"
	"time"

	domain "github.com/furnishop/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Catalog() CatalogRepository
	Inventory() InventoryRepository
	Orders() OrderRepository
	Promotions() PromotionRepository
	PurchaseCounters() PurchaseCounterRepository
	Ping(ctx context.Context) error
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository persists carts keyed by domain.CartKey.StorageID.
type CartRepository interface {
	Get(ctx context.Context, cartID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Delete(ctx context.Context, cartID string) error
}

// CatalogRepository resolves variations in batches. Unknown identifiers are absent from the
// returned map rather than reported as errors.
type CatalogRepository interface {
	FindVariations(ctx context.Context, variationIDs []string) (map[string]domain.Variation, error)
}

// InventoryRepository adjusts per-variation stock counters with single atomic operations.
type InventoryRepository interface {
	// Reserve decrements stock only when at least quantity units remain. It returns an
	// *InventoryError with InventoryErrorInsufficientStock when the condition fails.
	Reserve(ctx context.Context, variationID string, quantity int) error
	// Release increments stock unconditionally.
	Release(ctx context.Context, variationID string, quantity int) error
}

// OrderRepository persists orders. Implementations enforce uniqueness of OrderCode and
// GatewayTransID and report violations as conflicts.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByCode(ctx context.Context, orderCode string) (domain.Order, error)
	FindByGatewayTransID(ctx context.Context, gatewayTransID string) (domain.Order, error)
	// UpdateStatus applies the update only when the stored order still matches the expected
	// state and returns a conflict otherwise.
	UpdateStatus(ctx context.Context, update OrderStatusUpdate) (domain.Order, error)
	// AttachPayment stores gateway references on a pending, not yet settled order.
	AttachPayment(ctx context.Context, attachment OrderPaymentAttachment) (domain.Order, error)
	// Delete removes the order when its status still equals expectedStatus.
	Delete(ctx context.Context, orderID string, expectedStatus domain.OrderStatus) error
}

// OrderStatusUpdate describes a conditional order mutation. Entry is appended to the status
// history when non-nil. Empty payment fields leave the payment status unchecked and unchanged.
type OrderStatusUpdate struct {
	OrderID               string
	ExpectedStatus        domain.OrderStatus
	ExpectedPaymentStatus domain.PaymentStatus
	Status                domain.OrderStatus
	PaymentStatus         domain.PaymentStatus
	Entry                 *domain.StatusHistoryEntry
	UpdatedAt             time.Time
}

// OrderPaymentAttachment carries gateway references produced by a successful create call.
type OrderPaymentAttachment struct {
	OrderID               string
	GatewayTransID        string
	GatewayTransactionRef string
	PaymentURL            string
	UpdatedAt             time.Time
}

// PromotionRepository reads coupon definitions and tracks their usage.
type PromotionRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Promotion, error)
	// ConsumeUsage increments the usage counter when the limit allows; conflict otherwise.
	ConsumeUsage(ctx context.Context, code string) error
	ReleaseUsage(ctx context.Context, code string) error
}

// PurchaseCounterRepository maintains product totalPurchased counters.
type PurchaseCounterRepository interface {
	// ApplyOnce adds quantities per product id at most once per order id. It reports false
	// when the order was already counted.
	ApplyOnce(ctx context.Context, orderID string, quantities map[string]int) (bool, error)
}
