package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectionOptions configures the MongoDB client pool.
type ConnectionOptions struct {
	URI              string
	Database         string
	ConnectTimeout   time.Duration
	MaxPoolSize      uint64
	MinPoolSize      uint64
	SelectionTimeout time.Duration
}

// Connect dials MongoDB, verifies the connection and returns the target database.
func Connect(ctx context.Context, opts ConnectionOptions) (*mongo.Database, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.SelectionTimeout <= 0 {
		opts.SelectionTimeout = 5 * time.Second
	}
	if opts.MaxPoolSize == 0 {
		opts.MaxPoolSize = 100
	}
	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetConnectTimeout(opts.ConnectTimeout).
		SetServerSelectionTimeout(opts.SelectionTimeout).
		SetMaxPoolSize(opts.MaxPoolSize).
		SetMinPoolSize(opts.MinPoolSize)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client.Database(opts.Database), nil
}

// EnsureIndexes creates the uniqueness constraints the order core depends on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	orderIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "order_code", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_order_code"),
		},
		{
			// Multikey: every transaction id ever attached to an order is unique across orders.
			Keys: bson.D{{Key: "gateway_trans_ids", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("uniq_gateway_trans_ids").
				SetPartialFilterExpression(bson.M{"gateway_trans_ids": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("owner_created"),
		},
	}
	if _, err := db.Collection(ordersCollection).Indexes().CreateMany(ctx, orderIndexes); err != nil {
		return fmt.Errorf("create order indexes: %w", err)
	}

	cartIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60).SetName("cart_ttl"),
		},
	}
	if _, err := db.Collection(cartsCollection).Indexes().CreateMany(ctx, cartIndexes); err != nil {
		return fmt.Errorf("create cart indexes: %w", err)
	}

	variationIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "product_id", Value: 1}}, Options: options.Index().SetName("product")},
	}
	if _, err := db.Collection(variationsCollection).Indexes().CreateMany(ctx, variationIndexes); err != nil {
		return fmt.Errorf("create variation indexes: %w", err)
	}
	return nil
}
