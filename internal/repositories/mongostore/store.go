// Package mongostore implements the repository registry on MongoDB.
package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/furnishop/api/internal/repositories"
)

const (
	cartsCollection      = "carts"
	variationsCollection = "variations"
	productsCollection   = "products"
	ordersCollection     = "orders"
	promotionsCollection = "promotions"
	ledgerCollection     = "purchase_ledger"
)

// Option customises a Store.
type Option func(*Store)

// WithTransactions toggles multi-document transactions. Standalone servers do not support them.
func WithTransactions(enabled bool) Option {
	return func(s *Store) {
		s.transactions = enabled
	}
}

// Store is a repositories.Registry backed by a MongoDB database.
type Store struct {
	db           *mongo.Database
	transactions bool
}

var _ repositories.Registry = (*Store)(nil)

// New wraps an already connected database.
func New(db *mongo.Database, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("mongostore: database is required")
	}
	store := &Store{db: db, transactions: true}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// Ping checks connectivity against the primary.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

// RunInTx runs fn inside a session transaction when enabled. Repositories called with the
// context passed to fn join the transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if !s.transactions {
		return fn(ctx)
	}
	if _, inTx := ctx.(mongo.SessionContext); inTx {
		return fn(ctx)
	}
	session, err := s.db.Client().StartSession()
	if err != nil {
		return wrapError("tx.start", err)
	}
	defer session.EndSession(ctx)
	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		return nil, fn(sessCtx)
	})
	return err
}

func (s *Store) Carts() repositories.CartRepository {
	return &cartRepository{coll: s.db.Collection(cartsCollection)}
}

func (s *Store) Catalog() repositories.CatalogRepository {
	return &catalogRepository{
		variations: s.db.Collection(variationsCollection),
		products:   s.db.Collection(productsCollection),
	}
}

func (s *Store) Inventory() repositories.InventoryRepository {
	return &inventoryRepository{coll: s.db.Collection(variationsCollection)}
}

func (s *Store) Orders() repositories.OrderRepository {
	return &orderRepository{coll: s.db.Collection(ordersCollection)}
}

func (s *Store) Promotions() repositories.PromotionRepository {
	return &promotionRepository{coll: s.db.Collection(promotionsCollection)}
}

func (s *Store) PurchaseCounters() repositories.PurchaseCounterRepository {
	return &purchaseCounterRepository{
		ledger:   s.db.Collection(ledgerCollection),
		products: s.db.Collection(productsCollection),
		tx:       s,
	}
}
