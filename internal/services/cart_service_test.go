package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/furnishop/api/internal/domain"
)

func TestCartService_AddItem(t *testing.T) {
	f := newFixture(t)
	f.seedVariation("sofa", 9_000_000, 7_500_000, 3)
	f.store.PutVariation(domain.Variation{ID: "retired", ProductID: "p-old", Price: 100, Stock: 10, Sellable: false})
	ctx := context.Background()
	key := CartKey{GuestToken: "g-1"}

	cart, err := f.carts.AddItem(ctx, CartItemCommand{Key: key, VariationID: "sofa", Quantity: 2})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if cart.ID != "guest:g-1" || len(cart.Items) != 1 || cart.Items[0].Quantity != 2 {
		t.Fatalf("unexpected cart %+v", cart)
	}

	cart, err = f.carts.AddItem(ctx, CartItemCommand{Key: key, VariationID: "sofa", Quantity: 1})
	if err != nil {
		t.Fatalf("add again: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 3 {
		t.Fatalf("expected cumulative quantity 3, got %+v", cart.Items)
	}

	tests := []struct {
		name string
		cmd  CartItemCommand
		want error
	}{
		{"nothing left to add", CartItemCommand{Key: key, VariationID: "sofa", Quantity: 1}, ErrNothingToAdd},
		{"unknown variation", CartItemCommand{Key: key, VariationID: "ghost", Quantity: 1}, ErrInvalidReference},
		{"unsellable product", CartItemCommand{Key: key, VariationID: "retired", Quantity: 1}, ErrInvalidReference},
		{"zero quantity", CartItemCommand{Key: key, VariationID: "sofa", Quantity: 0}, ErrValidation},
		{"no owner", CartItemCommand{VariationID: "sofa", Quantity: 1}, ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.carts.AddItem(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCartService_AddItemInsufficientStock(t *testing.T) {
	f := newFixture(t)
	f.seedVariation("chair", 500_000, 0, 5)
	ctx := context.Background()
	key := CartKey{UserID: "u-1"}
	f.fillCart(t, key, map[string]int{"chair": 3})

	_, err := f.carts.AddItem(ctx, CartItemCommand{Key: key, VariationID: "chair", Quantity: 3})
	var stockErr *StockError
	if !errors.As(err, &stockErr) || !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected stock error, got %v", err)
	}
	if stockErr.Available != 2 || stockErr.Requested != 3 {
		t.Fatalf("unexpected shortfall %+v", stockErr)
	}
	if errors.Is(err, ErrNothingToAdd) {
		t.Fatal("partial availability must not be reported as nothing to add")
	}
}

func TestCartService_UserKeyWinsOverGuest(t *testing.T) {
	f := newFixture(t)
	f.seedVariation("lamp", 200_000, 0, 10)
	cart, err := f.carts.AddItem(context.Background(), CartItemCommand{
		Key:         CartKey{UserID: "u-9", GuestToken: "g-9"},
		VariationID: "lamp",
		Quantity:    1,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if cart.OwnerKind != domain.CartOwnerUser || cart.OwnerID != "u-9" {
		t.Fatalf("expected user-owned cart, got %+v", cart)
	}
}

func TestCartService_UpdateRemoveClear(t *testing.T) {
	f := newFixture(t)
	f.seedVariation("a", 100, 0, 10)
	f.seedVariation("b", 200, 0, 10)
	f.seedVariation("c", 300, 0, 10)
	ctx := context.Background()
	key := CartKey{UserID: "u-1"}
	f.fillCart(t, key, map[string]int{"a": 1, "b": 1, "c": 1})

	cart, err := f.carts.UpdateItem(ctx, CartItemCommand{Key: key, VariationID: "a", Quantity: 4})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if cart.Items[indexOfCartItem(cart.Items, "a")].Quantity != 4 {
		t.Fatalf("quantity not updated: %+v", cart.Items)
	}
	if _, err := f.carts.UpdateItem(ctx, CartItemCommand{Key: key, VariationID: "a", Quantity: 11}); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	cart, err = f.carts.RemoveItems(ctx, key, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("remove many: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].VariationID != "c" {
		t.Fatalf("unexpected items %+v", cart.Items)
	}

	// Removing twice is a no-op.
	if _, err := f.carts.RemoveItem(ctx, key, "a"); err != nil {
		t.Fatalf("idempotent remove: %v", err)
	}

	cart, err = f.carts.RemoveItem(ctx, key, "c")
	if err != nil {
		t.Fatalf("remove last: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart.Items)
	}
	if _, err := f.store.Carts().Get(ctx, key.StorageID()); err == nil {
		t.Fatal("removing the last item should delete the cart")
	}

	f.fillCart(t, key, map[string]int{"a": 1})
	if err := f.carts.Clear(ctx, key); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := f.carts.Clear(ctx, key); err != nil {
		t.Fatalf("clear twice: %v", err)
	}
}

func TestCartService_GetCartPricesLiveCatalog(t *testing.T) {
	f := newFixture(t)
	f.seedVariation("desk", 3_000_000, 2_500_000, 5)
	f.seedVariation("shelf", 800_000, 0, 5)
	ctx := context.Background()
	key := CartKey{GuestToken: "g-2"}
	f.fillCart(t, key, map[string]int{"desk": 2, "shelf": 1})

	shelf, _ := f.store.Variation("shelf")
	shelf.Sellable = false
	f.store.PutVariation(shelf)

	view, err := f.carts.GetCart(ctx, key)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if view.Subtotal != 5_000_000 {
		t.Fatalf("expected subtotal 5000000, got %d", view.Subtotal)
	}
	if !view.HasProblems {
		t.Fatal("expected unavailable shelf to be flagged")
	}

	empty, err := f.carts.GetCart(ctx, CartKey{GuestToken: "nobody"})
	if err != nil || len(empty.Lines) != 0 {
		t.Fatalf("expected empty view, got %+v %v", empty, err)
	}
}

func TestCartService_MergeKeepsNonEmptyUserCart(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"u1", "g1", "g2", "g3"} {
		f.seedVariation(id, 1000, 0, 10)
	}
	ctx := context.Background()
	userKey := CartKey{UserID: "user-1"}
	guestKey := CartKey{GuestToken: "guest-1"}
	f.fillCart(t, userKey, map[string]int{"u1": 1})
	f.fillCart(t, guestKey, map[string]int{"g1": 1, "g2": 2, "g3": 3})

	before, _ := f.store.Carts().Get(ctx, userKey.StorageID())

	result, err := f.carts.MergeOnLogin(ctx, "guest-1", "user-1")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.Merged {
		t.Fatal("user cart with items must not be merged into")
	}
	after, err := f.store.Carts().Get(ctx, userKey.StorageID())
	if err != nil {
		t.Fatalf("user cart: %v", err)
	}
	if len(after.Items) != 1 || after.Items[0] != before.Items[0] {
		t.Fatalf("user cart changed: %+v", after.Items)
	}
	if _, err := f.store.Carts().Get(ctx, guestKey.StorageID()); err == nil {
		t.Fatal("guest cart should be deleted")
	}
}

func TestCartService_MergeCopiesClampedLines(t *testing.T) {
	f := newFixture(t)
	f.seedVariation("bed", 1000, 0, 10)
	f.seedVariation("rug", 1000, 0, 10)
	f.seedVariation("vase", 1000, 0, 10)
	ctx := context.Background()
	guestKey := CartKey{GuestToken: "guest-2"}
	f.fillCart(t, guestKey, map[string]int{"bed": 5, "rug": 1, "vase": 2})

	bed, _ := f.store.Variation("bed")
	bed.Stock = 2
	f.store.PutVariation(bed)
	rug, _ := f.store.Variation("rug")
	rug.Sellable = false
	f.store.PutVariation(rug)

	result, err := f.carts.MergeOnLogin(ctx, "guest-2", "user-2")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !result.Merged || len(result.Cart.Items) != 2 {
		t.Fatalf("unexpected merge result %+v", result)
	}
	if got := result.Cart.Items[indexOfCartItem(result.Cart.Items, "bed")].Quantity; got != 2 {
		t.Fatalf("expected bed clamped to 2, got %d", got)
	}
	if len(result.Dropped) != 1 || result.Dropped[0] != "rug" {
		t.Fatalf("expected rug dropped, got %v", result.Dropped)
	}
	if _, err := f.store.Carts().Get(ctx, guestKey.StorageID()); err == nil {
		t.Fatal("guest cart should be deleted")
	}
}

type failingLookups struct {
	CatalogService
	err error
}

func (c failingLookups) LookupMany(context.Context, []string) (map[string]Variation, error) {
	return nil, c.err
}

func TestCartService_MergeDeletesGuestCartWhenMergeFails(t *testing.T) {
	f := newFixture(t)
	f.seedVariation("lamp", 1000, 0, 10)
	ctx := context.Background()
	guestKey := CartKey{GuestToken: "guest-3"}
	f.fillCart(t, guestKey, map[string]int{"lamp": 2})

	lookupErr := errors.New("catalog unavailable")
	carts, err := NewCartService(CartServiceDeps{
		Carts:   f.store.Carts(),
		Catalog: failingLookups{CatalogService: f.catalog, err: lookupErr},
		Clock:   func() time.Time { return fixtureNow },
	})
	if err != nil {
		t.Fatalf("carts: %v", err)
	}

	if _, err := carts.MergeOnLogin(ctx, "guest-3", "user-3"); !errors.Is(err, lookupErr) {
		t.Fatalf("expected lookup error, got %v", err)
	}
	if _, err := f.store.Carts().Get(ctx, guestKey.StorageID()); err == nil {
		t.Fatal("guest cart should be deleted even when the merge fails")
	}
	if _, err := f.store.Carts().Get(ctx, CartKey{UserID: "user-3"}.StorageID()); err == nil {
		t.Fatal("no user cart should be created by a failed merge")
	}
}
