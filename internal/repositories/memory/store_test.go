package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/repositories"
)

func TestInventoryReserveNeverGoesNegative(t *testing.T) {
	store := NewStore()
	store.PutVariation(domain.Variation{ID: "var-1", ProductID: "prod-1", Price: 100, Stock: 5, Sellable: true})
	inventory := store.Inventory()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := inventory.Reserve(context.Background(), "var-1", 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if code, _ := repositories.InventoryErrorCodeOf(err); code != repositories.InventoryErrorInsufficientStock {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 {
		t.Fatalf("expected 5 reservations, got %d", succeeded)
	}
	v, _ := store.Variation("var-1")
	if v.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", v.Stock)
	}
}

func TestOrderInsertRejectsDuplicateCode(t *testing.T) {
	store := NewStore()
	orders := store.Orders()
	ctx := context.Background()

	if err := orders.Insert(ctx, domain.Order{ID: "ord-1", OrderCode: "FUR1"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := orders.Insert(ctx, domain.Order{ID: "ord-2", OrderCode: "FUR1"})
	if !repositories.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestOrderUpdateStatusIsConditional(t *testing.T) {
	store := NewStore()
	orders := store.Orders()
	ctx := context.Background()
	_ = orders.Insert(ctx, domain.Order{ID: "ord-1", OrderCode: "FUR1", Status: domain.OrderStatusPending})

	update := repositories.OrderStatusUpdate{
		OrderID:        "ord-1",
		ExpectedStatus: domain.OrderStatusPending,
		Status:         domain.OrderStatusConfirmed,
		Entry:          &domain.StatusHistoryEntry{Status: domain.OrderStatusConfirmed},
		UpdatedAt:      time.Now(),
	}
	updated, err := orders.UpdateStatus(ctx, update)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.OrderStatusConfirmed || len(updated.StatusHistory) != 1 {
		t.Fatalf("unexpected order %+v", updated)
	}

	if _, err := orders.UpdateStatus(ctx, update); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict on stale update, got %v", err)
	}
}

func TestPurchaseCountersApplyOnce(t *testing.T) {
	store := NewStore()
	counters := store.PurchaseCounters()
	ctx := context.Background()

	applied, err := counters.ApplyOnce(ctx, "ord-1", map[string]int{"prod-1": 2})
	if err != nil || !applied {
		t.Fatalf("first apply: applied=%v err=%v", applied, err)
	}
	applied, err = counters.ApplyOnce(ctx, "ord-1", map[string]int{"prod-1": 2})
	if err != nil || applied {
		t.Fatalf("second apply: applied=%v err=%v", applied, err)
	}
	if got := store.TotalPurchased("prod-1"); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}
