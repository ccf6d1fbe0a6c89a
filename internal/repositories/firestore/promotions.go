package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/repositories"
)

var errUsageExhausted = errors.New("usage limit reached")

type promotionRepository struct{ s *Store }

func (r *promotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	key := domain.NormalizeCouponCode(code)
	doc, err := r.s.promotions.Get(ctx, key)
	if err != nil {
		return domain.Promotion{}, err
	}
	return doc.Data.toDomain(key), nil
}

func (r *promotionRepository) ConsumeUsage(ctx context.Context, code string) error {
	return r.adjustUsage(ctx, code, 1)
}

func (r *promotionRepository) ReleaseUsage(ctx context.Context, code string) error {
	return r.adjustUsage(ctx, code, -1)
}

func (r *promotionRepository) adjustUsage(ctx context.Context, code string, delta int) error {
	key := domain.NormalizeCouponCode(code)
	return r.s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.s.promotions.DocumentRef(ctx, key)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return repositories.NewStoreError("promotion.usage", repositories.KindNotFound, err)
		}
		if err != nil {
			return err
		}
		var doc promotionDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		switch {
		case delta > 0 && doc.UsageLimit > 0 && doc.UsedCount >= doc.UsageLimit:
			return repositories.NewStoreError("promotion.usage", repositories.KindConflict, errUsageExhausted)
		case delta < 0 && doc.UsedCount <= 0:
			return nil
		}
		return tx.Update(ref, []firestore.Update{{Path: "usedCount", Value: firestore.Increment(delta)}})
	}, r.s.tx("promotion.adjust_usage")...)
}

type purchaseCounterRepository struct{ s *Store }

// ApplyOnce writes the ledger entry and product increments in one transaction.
func (r *purchaseCounterRepository) ApplyOnce(ctx context.Context, orderID string, quantities map[string]int) (bool, error) {
	applied := false
	err := r.s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		applied = false
		ledgerRef, err := r.s.ledger.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		if _, err := tx.Get(ledgerRef); err == nil {
			return nil
		} else if status.Code(err) != codes.NotFound {
			return err
		}
		if err := tx.Create(ledgerRef, ledgerDocument{Quantities: quantities, AppliedAt: time.Now().UTC()}); err != nil {
			return err
		}
		for productID, qty := range quantities {
			productRef, err := r.s.products.DocumentRef(ctx, productID)
			if err != nil {
				return err
			}
			if err := tx.Set(productRef, map[string]any{"totalPurchased": firestore.Increment(qty)}, firestore.MergeAll); err != nil {
				return err
			}
		}
		applied = true
		return nil
	}, r.s.tx("purchase_counter.apply")...)
	if err != nil {
		return false, err
	}
	return applied, nil
}
