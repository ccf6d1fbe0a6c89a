package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/furnishop/api/internal/domain"
)

func TestDiscountFor(t *testing.T) {
	tests := []struct {
		name     string
		promo    Promotion
		subtotal int64
		want     int64
	}{
		{"percentage", Promotion{Type: domain.DiscountPercentage, Value: 10}, 1_234_567, 123_457},
		{"percentage rounds half up", Promotion{Type: domain.DiscountPercentage, Value: 5}, 1_010, 51},
		{"percentage capped", Promotion{Type: domain.DiscountPercentage, Value: 50, MaxDiscount: 200_000}, 1_000_000, 200_000},
		{"fractional percentage", Promotion{Type: domain.DiscountPercentage, Value: 12.5}, 80_000, 10_000},
		{"fixed", Promotion{Type: domain.DiscountFixed, Value: 50_000}, 300_000, 50_000},
		{"fixed clamped to subtotal", Promotion{Type: domain.DiscountFixed, Value: 500_000}, 300_000, 300_000},
		{"unknown type", Promotion{Type: "bogo", Value: 10}, 300_000, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := discountFor(tc.promo, tc.subtotal); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestPromotionService_ApplyEligibility(t *testing.T) {
	f := newFixture(t)
	day := 24 * time.Hour
	f.store.PutPromotion(domain.Promotion{Code: "OFF", Type: domain.DiscountFixed, Value: 1000, Active: false})
	f.store.PutPromotion(domain.Promotion{Code: "SOON", Type: domain.DiscountFixed, Value: 1000, Active: true, StartsAt: fixtureNow.Add(day)})
	f.store.PutPromotion(domain.Promotion{Code: "OLD", Type: domain.DiscountFixed, Value: 1000, Active: true, EndsAt: fixtureNow})
	f.store.PutPromotion(domain.Promotion{Code: "USED", Type: domain.DiscountFixed, Value: 1000, Active: true, UsageLimit: 2, UsedCount: 2})
	f.store.PutPromotion(domain.Promotion{Code: "BIG", Type: domain.DiscountFixed, Value: 1000, Active: true, MinOrderAmount: 50_000})
	f.store.PutPromotion(domain.Promotion{
		Code:       "SPRING",
		Type:       domain.DiscountPercentage,
		Value:      20,
		Active:     true,
		StartsAt:   fixtureNow.Add(-day),
		EndsAt:     fixtureNow.Add(day),
		UsageLimit: 10,
	})

	tests := []struct {
		code   string
		reason PromotionRejection
	}{
		{"missing", PromotionUnknown},
		{"off", PromotionInactive},
		{"soon", PromotionNotStarted},
		{"old", PromotionExpired},
		{"used", PromotionExhausted},
		{"big", PromotionBelowMinimum},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			_, err := f.promotions.Apply(context.Background(), tc.code, 10_000)
			var promoErr *PromotionError
			if !errors.As(err, &promoErr) || promoErr.Reason != tc.reason {
				t.Fatalf("expected %s, got %v", tc.reason, err)
			}
			if !errors.Is(err, ErrPromotionRejected) {
				t.Fatal("rejections must match ErrPromotionRejected")
			}
		})
	}

	applied, err := f.promotions.Apply(context.Background(), "spring", 10_000)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied.Code != "SPRING" || applied.DiscountAmount != 2_000 || !applied.Tracked {
		t.Fatalf("unexpected application %+v", applied)
	}
	if promo, _ := f.store.Promotion("SPRING"); promo.UsedCount != 0 {
		t.Fatal("apply must not consume a use")
	}
}

func TestPromotionService_ConsumeAndRelease(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.PutPromotion(domain.Promotion{Code: "ONE", Type: domain.DiscountFixed, Value: 1000, Active: true, UsageLimit: 1})

	if err := f.promotions.Consume(ctx, "one"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	var promoErr *PromotionError
	if err := f.promotions.Consume(ctx, "one"); !errors.As(err, &promoErr) || promoErr.Reason != PromotionExhausted {
		t.Fatalf("expected exhausted, got %v", err)
	}
	if err := f.promotions.Release(ctx, "one"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := f.promotions.Release(ctx, "ghost"); err != nil {
		t.Fatalf("releasing an unknown code should be ignored, got %v", err)
	}
	if promo, _ := f.store.Promotion("ONE"); promo.UsedCount != 0 {
		t.Fatalf("expected 0 uses, got %d", promo.UsedCount)
	}
}
