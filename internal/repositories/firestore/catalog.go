package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/repositories"
)

type catalogRepository struct{ s *Store }

// FindVariations issues one batched read for variations and one for their products.
func (r *catalogRepository) FindVariations(ctx context.Context, ids []string) (map[string]domain.Variation, error) {
	result := make(map[string]domain.Variation, len(ids))
	variations, err := r.s.variations.GetAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(variations) == 0 {
		return result, nil
	}

	productIDs := make([]string, 0, len(variations))
	for _, v := range variations {
		productIDs = append(productIDs, v.Data.ProductID)
	}
	products, err := r.s.products.GetAll(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]productDocument, len(products))
	for _, p := range products {
		byID[p.ID] = p.Data
	}

	for _, v := range variations {
		product, ok := byID[v.Data.ProductID]
		name := v.Data.Name
		if name == "" {
			name = product.Name
		}
		result[v.ID] = domain.Variation{
			ID:        v.ID,
			ProductID: v.Data.ProductID,
			Name:      name,
			Price:     v.Data.Price,
			SalePrice: v.Data.SalePrice,
			Stock:     v.Data.Stock,
			Sellable:  ok && product.Active && !product.Deleted,
		}
	}
	return result, nil
}

type inventoryRepository struct{ s *Store }

func (r *inventoryRepository) Reserve(ctx context.Context, variationID string, quantity int) error {
	return r.adjust(ctx, variationID, quantity, true)
}

func (r *inventoryRepository) Release(ctx context.Context, variationID string, quantity int) error {
	return r.adjust(ctx, variationID, quantity, false)
}

// adjust reads and writes the stock counter inside one transaction, so a reservation is a
// serialised compare-and-decrement.
func (r *inventoryRepository) adjust(ctx context.Context, variationID string, quantity int, reserve bool) error {
	if quantity <= 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, variationID, nil)
	}
	delta := quantity
	if reserve {
		delta = -quantity
	}
	return r.s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.s.variations.DocumentRef(ctx, variationID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return repositories.NewInventoryError(repositories.InventoryErrorVariationNotFound, variationID, nil)
		}
		if err != nil {
			return err
		}
		if reserve {
			var doc variationDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.Stock < quantity {
				return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, variationID, nil)
			}
		}
		return tx.Update(ref, []firestore.Update{{Path: "stock", Value: firestore.Increment(delta)}})
	}, r.s.tx("inventory.adjust")...)
}
