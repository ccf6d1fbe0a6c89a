package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/furnishop/api/internal/domain"
)

type cartRepository struct {
	coll *mongo.Collection
}

func (r *cartRepository) Get(ctx context.Context, cartID string) (domain.Cart, error) {
	var doc cartDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": cartID}).Decode(&doc); err != nil {
		return domain.Cart{}, wrapError("cart.get", err)
	}
	return doc.toDomain(), nil
}

// Save upserts the whole cart document; created_at is only written on insert.
func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = time.Now().UTC()
	}
	createdAt := cart.CreatedAt
	if createdAt.IsZero() {
		createdAt = cart.UpdatedAt
	}
	doc := cartToDocument(cart)
	update := bson.M{
		"$set": bson.M{
			"owner_kind": doc.OwnerKind,
			"owner_id":   doc.OwnerID,
			"items":      doc.Items,
			"updated_at": doc.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": createdAt.UTC()},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var saved cartDocument
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": cart.ID}, update, opts).Decode(&saved); err != nil {
		return domain.Cart{}, wrapError("cart.save", err)
	}
	return saved.toDomain(), nil
}

func (r *cartRepository) Delete(ctx context.Context, cartID string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": cartID})
	return wrapError("cart.delete", err)
}
