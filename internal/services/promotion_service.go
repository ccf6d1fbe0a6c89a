package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/repositories"
)

// PromotionServiceDeps wires the promotion repository.
type PromotionServiceDeps struct {
	Promotions repositories.PromotionRepository
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type promotionService struct {
	repo   repositories.PromotionRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewPromotionService constructs a PromotionService.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Promotions == nil {
		return nil, errors.New("promotion service: repository is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("promotion service: clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &promotionService{
		repo:   deps.Promotions,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
	}, nil
}

// Apply validates the coupon against subtotal and computes the discount. It does not consume
// a use.
func (s *promotionService) Apply(ctx context.Context, code string, subtotal int64) (PromotionApplication, error) {
	normalized := domain.NormalizeCouponCode(code)
	if normalized == "" {
		return PromotionApplication{}, fmt.Errorf("%w: coupon code is required", ErrValidation)
	}
	if subtotal < 0 {
		return PromotionApplication{}, fmt.Errorf("%w: subtotal must not be negative", ErrValidation)
	}

	promo, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		if isRepoNotFound(err) {
			return PromotionApplication{}, &PromotionError{Code: normalized, Reason: PromotionUnknown}
		}
		return PromotionApplication{}, translateRepoError(err, nil)
	}

	if reason, ok := s.eligibility(promo, subtotal); !ok {
		return PromotionApplication{}, &PromotionError{Code: normalized, Reason: reason}
	}

	return PromotionApplication{
		Code:           normalized,
		Type:           promo.Type,
		Value:          promo.Value,
		DiscountAmount: discountFor(promo, subtotal),
		Tracked:        promo.UsageLimit > 0,
	}, nil
}

func (s *promotionService) Consume(ctx context.Context, code string) error {
	normalized := domain.NormalizeCouponCode(code)
	if err := s.repo.ConsumeUsage(ctx, normalized); err != nil {
		switch {
		case isRepoConflict(err):
			return &PromotionError{Code: normalized, Reason: PromotionExhausted}
		case isRepoNotFound(err):
			return &PromotionError{Code: normalized, Reason: PromotionUnknown}
		}
		return translateRepoError(err, nil)
	}
	return nil
}

func (s *promotionService) Release(ctx context.Context, code string) error {
	normalized := domain.NormalizeCouponCode(code)
	if err := s.repo.ReleaseUsage(ctx, normalized); err != nil {
		if isRepoConflict(err) || isRepoNotFound(err) {
			s.logger(ctx, "promotion.release_skipped", map[string]any{"code": normalized, "error": err.Error()})
			return nil
		}
		return translateRepoError(err, nil)
	}
	return nil
}

func (s *promotionService) eligibility(promo Promotion, subtotal int64) (PromotionRejection, bool) {
	now := s.now()
	switch {
	case !promo.Active:
		return PromotionInactive, false
	case !promo.StartsAt.IsZero() && now.Before(promo.StartsAt):
		return PromotionNotStarted, false
	case !promo.EndsAt.IsZero() && !now.Before(promo.EndsAt):
		return PromotionExpired, false
	case promo.UsageLimit > 0 && promo.UsedCount >= promo.UsageLimit:
		return PromotionExhausted, false
	case subtotal < promo.MinOrderAmount:
		return PromotionBelowMinimum, false
	}
	return "", true
}

// discountFor rounds percentage discounts half-up to whole currency units and never exceeds
// the subtotal.
func discountFor(promo Promotion, subtotal int64) int64 {
	var amount decimal.Decimal
	switch promo.Type {
	case domain.DiscountPercentage:
		amount = decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromFloat(promo.Value)).
			Div(decimal.NewFromInt(100)).
			Round(0)
		if promo.MaxDiscount > 0 {
			amount = decimal.Min(amount, decimal.NewFromInt(promo.MaxDiscount))
		}
	case domain.DiscountFixed:
		amount = decimal.NewFromFloat(promo.Value).Round(0)
	default:
		return 0
	}
	amount = decimal.Max(decimal.Zero, decimal.Min(amount, decimal.NewFromInt(subtotal)))
	return amount.IntPart()
}
