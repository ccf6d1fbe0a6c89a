package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/payments"
	"github.com/furnishop/api/internal/repositories/memory"
)

var fixtureNow = time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)

var validAddress = ShippingAddress{
	FullName: "Nguyen Van A",
	Phone:    "0901234567",
	Street:   "12 Ly Thuong Kiet",
	Ward:     "Ward 7",
	District: "District 10",
	City:     "Ho Chi Minh City",
}

type captureEvents struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (c *captureEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureEvents) types() []domain.OrderEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.OrderEventType, 0, len(c.events))
	for _, event := range c.events {
		out = append(out, event.Type)
	}
	return out
}

type stubGateway struct {
	signer   payments.Signer
	createFn func(ctx context.Context, req payments.CreateRequest) (payments.CreateResult, error)
	requests []payments.CreateRequest
	transSeq int
}

func (g *stubGateway) CreatePayment(ctx context.Context, req payments.CreateRequest) (payments.CreateResult, error) {
	g.requests = append(g.requests, req)
	if g.createFn != nil {
		return g.createFn(ctx, req)
	}
	return payments.CreateResult{TransID: req.TransID, OrderURL: "https://pay.example/" + req.TransID, TransToken: "tok-" + req.TransID}, nil
}

func (g *stubGateway) ParseCallback(payload payments.CallbackPayload) (payments.CallbackEvent, error) {
	return g.signer.ParseCallback(payload)
}

func (g *stubGateway) NewTransID(now time.Time) string {
	g.transSeq++
	return fmt.Sprintf("%s_%04d", now.Format("060102"), g.transSeq)
}

type fixture struct {
	store      *memory.Store
	events     *captureEvents
	catalog    CatalogService
	inventory  InventoryService
	promotions PromotionService
	carts      CartService
	orders     OrderService
	payments   PaymentService
	gateway    *stubGateway
	signer     payments.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), events: &captureEvents{}}
	clock := func() time.Time { return fixtureNow }

	var err error
	f.catalog, err = NewCatalogService(CatalogServiceDeps{Catalog: f.store.Catalog()})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	f.inventory, err = NewInventoryService(InventoryServiceDeps{Inventory: f.store.Inventory()})
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	f.promotions, err = NewPromotionService(PromotionServiceDeps{Promotions: f.store.Promotions(), Clock: clock})
	if err != nil {
		t.Fatalf("promotions: %v", err)
	}
	f.carts, err = NewCartService(CartServiceDeps{Carts: f.store.Carts(), Catalog: f.catalog, Clock: clock})
	if err != nil {
		t.Fatalf("carts: %v", err)
	}
	f.orders, err = NewOrderService(OrderServiceDeps{
		Orders:           f.store.Orders(),
		Carts:            f.store.Carts(),
		PurchaseCounters: f.store.PurchaseCounters(),
		Catalog:          f.catalog,
		Inventory:        f.inventory,
		Promotions:       f.promotions,
		Events:           f.events,
		Clock:            clock,
	})
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	f.signer, err = payments.NewSigner("key1", "key2")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	f.gateway = &stubGateway{signer: f.signer}
	f.payments, err = NewPaymentService(PaymentServiceDeps{
		Orders:       f.store.Orders(),
		OrderService: f.orders,
		Gateway:      f.gateway,
		Events:       f.events,
		Clock:        clock,
	})
	if err != nil {
		t.Fatalf("payments: %v", err)
	}
	return f
}

func (f *fixture) seedVariation(id string, price, salePrice int64, stock int) {
	f.store.PutVariation(domain.Variation{
		ID:        id,
		ProductID: "prod-" + id,
		Name:      "Variation " + id,
		Price:     price,
		SalePrice: salePrice,
		Stock:     stock,
		Sellable:  true,
	})
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	v, ok := f.store.Variation(id)
	if !ok {
		t.Fatalf("variation %s missing", id)
	}
	return v.Stock
}

func (f *fixture) fillCart(t *testing.T, key CartKey, lines map[string]int) {
	t.Helper()
	for id, qty := range lines {
		if _, err := f.carts.AddItem(context.Background(), CartItemCommand{Key: key, VariationID: id, Quantity: qty}); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
}

func (f *fixture) checkout(t *testing.T, key CartKey, method string) Order {
	t.Helper()
	order, err := f.orders.CreateFromCart(context.Background(), CreateOrderCommand{
		Key:             key,
		ShippingAddress: validAddress,
		PaymentMethod:   method,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	return order
}
