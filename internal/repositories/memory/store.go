// Package memory provides an in-process implementation of the repository registry used for
// local development and tests. Every operation runs under a single lock, which makes each call
// atomic in the same way the document-store backends are.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/repositories"
)

// Store holds all collections in memory.
type Store struct {
	mu sync.Mutex

	carts      map[string]domain.Cart
	orders     map[string]domain.Order
	byCode     map[string]string
	byTransID  map[string]string
	variations map[string]domain.Variation
	promotions map[string]domain.Promotion
	purchased  map[string]int
	counted    map[string]struct{}
}

var _ repositories.Registry = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		carts:      make(map[string]domain.Cart),
		orders:     make(map[string]domain.Order),
		byCode:     make(map[string]string),
		byTransID:  make(map[string]string),
		variations: make(map[string]domain.Variation),
		promotions: make(map[string]domain.Promotion),
		purchased:  make(map[string]int),
		counted:    make(map[string]struct{}),
	}
}

func (s *Store) Close(context.Context) error { return nil }
func (s *Store) Ping(context.Context) error  { return nil }

// RunInTx executes fn directly; individual operations are already atomic.
func (s *Store) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (s *Store) Carts() repositories.CartRepository           { return cartRepository{s} }
func (s *Store) Catalog() repositories.CatalogRepository      { return catalogRepository{s} }
func (s *Store) Inventory() repositories.InventoryRepository  { return inventoryRepository{s} }
func (s *Store) Orders() repositories.OrderRepository         { return orderRepository{s} }
func (s *Store) Promotions() repositories.PromotionRepository { return promotionRepository{s} }
func (s *Store) PurchaseCounters() repositories.PurchaseCounterRepository {
	return purchaseCounterRepository{s}
}

// PutVariation inserts or replaces a catalog variation.
func (s *Store) PutVariation(v domain.Variation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variations[strings.TrimSpace(v.ID)] = v
}

// Variation returns the stored variation.
func (s *Store) Variation(id string) (domain.Variation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variations[id]
	return v, ok
}

// PutPromotion inserts or replaces a coupon definition.
func (s *Store) PutPromotion(p domain.Promotion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Code = domain.NormalizeCouponCode(p.Code)
	s.promotions[p.Code] = p
}

// Promotion returns the stored coupon definition.
func (s *Store) Promotion(code string) (domain.Promotion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promotions[domain.NormalizeCouponCode(code)]
	return p, ok
}

// TotalPurchased returns the purchase counter for a product.
func (s *Store) TotalPurchased(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purchased[productID]
}

func cloneCart(cart domain.Cart) domain.Cart {
	cart.Items = slices.Clone(cart.Items)
	return cart
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = slices.Clone(order.Items)
	order.StatusHistory = slices.Clone(order.StatusHistory)
	order.GatewayTransIDs = slices.Clone(order.GatewayTransIDs)
	if order.Discount != nil {
		discount := *order.Discount
		order.Discount = &discount
	}
	return order
}
