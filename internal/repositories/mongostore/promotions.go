package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/repositories"
)

type promotionRepository struct {
	coll *mongo.Collection
}

func (r *promotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	var doc promotionDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": domain.NormalizeCouponCode(code)}).Decode(&doc); err != nil {
		return domain.Promotion{}, wrapError("promotion.find", err)
	}
	return doc.toDomain(), nil
}

func (r *promotionRepository) ConsumeUsage(ctx context.Context, code string) error {
	key := domain.NormalizeCouponCode(code)
	filter := bson.M{
		"_id": key,
		"$or": bson.A{
			bson.M{"usage_limit": bson.M{"$lte": 0}},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$used_count", "$usage_limit"}}},
		},
	}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"used_count": 1}})
	if err != nil {
		return wrapError("promotion.consume", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": key})
	if err != nil {
		return wrapError("promotion.consume", err)
	}
	if count == 0 {
		return repositories.NewStoreError("promotion.consume", repositories.KindNotFound, nil)
	}
	return repositories.NewStoreError("promotion.consume", repositories.KindConflict, errUsageExhausted)
}

func (r *promotionRepository) ReleaseUsage(ctx context.Context, code string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": domain.NormalizeCouponCode(code), "used_count": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"used_count": -1}},
	)
	return wrapError("promotion.release", err)
}

type purchaseCounterRepository struct {
	ledger   *mongo.Collection
	products *mongo.Collection
	tx       repositories.UnitOfWork
}

// recentCountedOrders bounds the per-product marker list. Markers only need to outlive the
// gap between a partial application and its retry; the ledger guards everything after that.
const recentCountedOrders = 500

const (
	ledgerStatePending = "pending"
	ledgerStateApplied = "applied"
)

// ApplyOnce counts an order's quantities into product totals exactly once. The ledger entry,
// keyed by order id, is claimed as pending and only marked applied after the increments
// succeed. Each product increment is itself conditional on the order not being in the
// product's counted_orders markers, so a retry after a partial failure only fills the gaps.
// The same path is safe with or without multi-document transactions.
func (r *purchaseCounterRepository) ApplyOnce(ctx context.Context, orderID string, quantities map[string]int) (bool, error) {
	applied := false
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		applied = false
		now := time.Now().UTC()
		_, err := r.ledger.UpdateOne(ctx,
			bson.M{"_id": orderID},
			bson.M{"$setOnInsert": bson.M{
				"quantities": quantities,
				"state":      ledgerStatePending,
				"created_at": now,
			}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			// Duplicate keys mean a concurrent claim won the upsert; the caller reports
			// not-applied and the winner does the counting.
			return wrapError("purchase_counter.ledger", err)
		}

		var entry ledgerDocument
		if err := r.ledger.FindOne(ctx, bson.M{"_id": orderID}).Decode(&entry); err != nil {
			return wrapError("purchase_counter.ledger", err)
		}
		// Entries written before the pending state existed were always fully applied.
		if entry.State != ledgerStatePending {
			return nil
		}

		if len(entry.Quantities) > 0 {
			models := make([]mongo.WriteModel, 0, len(entry.Quantities))
			for productID, qty := range entry.Quantities {
				models = append(models, mongo.NewUpdateOneModel().
					SetFilter(bson.M{"_id": productID, "counted_orders": bson.M{"$ne": orderID}}).
					SetUpdate(bson.M{
						"$inc": bson.M{"total_purchased": qty},
						"$push": bson.M{"counted_orders": bson.M{
							"$each":  bson.A{orderID},
							"$slice": -recentCountedOrders,
						}},
					}))
			}
			if _, err := r.products.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
				return wrapError("purchase_counter.increment", err)
			}
		}

		res, err := r.ledger.UpdateOne(ctx,
			bson.M{"_id": orderID, "state": ledgerStatePending},
			bson.M{"$set": bson.M{"state": ledgerStateApplied, "applied_at": now}},
		)
		if err != nil {
			return wrapError("purchase_counter.ledger", err)
		}
		applied = res.ModifiedCount == 1
		return nil
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return applied, nil
}
