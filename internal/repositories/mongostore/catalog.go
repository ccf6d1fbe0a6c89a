package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/repositories"
)

type catalogRepository struct {
	variations *mongo.Collection
	products   *mongo.Collection
}

// FindVariations loads variations and their parent products with one query per collection.
func (r *catalogRepository) FindVariations(ctx context.Context, ids []string) (map[string]domain.Variation, error) {
	result := make(map[string]domain.Variation, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	cursor, err := r.variations.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, wrapError("catalog.find_variations", err)
	}
	var variations []variationDocument
	if err := cursor.All(ctx, &variations); err != nil {
		return nil, wrapError("catalog.find_variations", err)
	}
	if len(variations) == 0 {
		return result, nil
	}

	productIDs := make([]string, 0, len(variations))
	seen := make(map[string]struct{}, len(variations))
	for _, v := range variations {
		if _, ok := seen[v.ProductID]; ok {
			continue
		}
		seen[v.ProductID] = struct{}{}
		productIDs = append(productIDs, v.ProductID)
	}

	cursor, err = r.products.Find(ctx, bson.M{"_id": bson.M{"$in": productIDs}})
	if err != nil {
		return nil, wrapError("catalog.find_products", err)
	}
	var products []productDocument
	if err := cursor.All(ctx, &products); err != nil {
		return nil, wrapError("catalog.find_products", err)
	}
	byID := make(map[string]productDocument, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	for _, v := range variations {
		product, ok := byID[v.ProductID]
		name := v.Name
		if name == "" {
			name = product.Name
		}
		result[v.ID] = domain.Variation{
			ID:        v.ID,
			ProductID: v.ProductID,
			Name:      name,
			Price:     v.Price,
			SalePrice: v.SalePrice,
			Stock:     v.Stock,
			Sellable:  ok && product.Active && !product.Deleted,
		}
	}
	return result, nil
}

type inventoryRepository struct {
	coll *mongo.Collection
}

// Reserve is a single conditional $inc; the stock filter makes concurrent decrements safe.
func (r *inventoryRepository) Reserve(ctx context.Context, variationID string, quantity int) error {
	if quantity <= 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, variationID, nil)
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": variationID, "stock": bson.M{"$gte": quantity}},
		bson.M{"$inc": bson.M{"stock": -quantity}},
	)
	if err != nil {
		return wrapError("inventory.reserve", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	exists, err := r.exists(ctx, variationID)
	if err != nil {
		return err
	}
	if !exists {
		return repositories.NewInventoryError(repositories.InventoryErrorVariationNotFound, variationID, nil)
	}
	return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, variationID, nil)
}

func (r *inventoryRepository) Release(ctx context.Context, variationID string, quantity int) error {
	if quantity <= 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, variationID, nil)
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": variationID}, bson.M{"$inc": bson.M{"stock": quantity}})
	if err != nil {
		return wrapError("inventory.release", err)
	}
	if res.MatchedCount == 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorVariationNotFound, variationID, nil)
	}
	return nil
}

func (r *inventoryRepository) exists(ctx context.Context, variationID string) (bool, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": variationID})
	if err != nil {
		return false, wrapError("inventory.exists", err)
	}
	return count > 0, nil
}
