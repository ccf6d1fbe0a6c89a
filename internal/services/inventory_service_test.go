package services

import (
	"context"
	"errors"
	"testing"
)

func TestInventoryService_ReserveLinesIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedVariation("a", 100, 0, 5)
	f.seedVariation("b", 100, 0, 5)
	f.seedVariation("c", 100, 0, 1)

	err := f.inventory.ReserveLines(ctx, []StockLine{
		{VariationID: "a", Quantity: 2},
		{VariationID: "b", Quantity: 3},
		{VariationID: "c", Quantity: 2},
	})
	var stockErr *StockError
	if !errors.As(err, &stockErr) || stockErr.VariationID != "c" {
		t.Fatalf("expected shortage on c, got %v", err)
	}
	for id, want := range map[string]int{"a": 5, "b": 5, "c": 1} {
		if got := f.stock(t, id); got != want {
			t.Fatalf("stock %s: expected %d, got %d", id, want, got)
		}
	}

	err = f.inventory.ReserveLines(ctx, []StockLine{{VariationID: "a", Quantity: 1}, {VariationID: "ghost", Quantity: 1}})
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) || !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if f.stock(t, "a") != 5 {
		t.Fatal("rollback should restore a")
	}
}

func TestInventoryService_ConservesStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedVariation("a", 100, 0, 10)

	lines := []StockLine{{VariationID: "a", Quantity: 2}, {VariationID: "a", Quantity: 3}}
	if err := f.inventory.ReserveLines(ctx, lines); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if f.stock(t, "a") != 5 {
		t.Fatalf("duplicate lines should be merged, got %d", f.stock(t, "a"))
	}
	if err := f.inventory.ReleaseLines(ctx, lines); err != nil {
		t.Fatalf("release: %v", err)
	}
	if f.stock(t, "a") != 10 {
		t.Fatalf("expected stock 10, got %d", f.stock(t, "a"))
	}

	if err := f.inventory.Reserve(ctx, "a", 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
	if err := f.inventory.ReserveLines(ctx, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation for empty lines, got %v", err)
	}
}
