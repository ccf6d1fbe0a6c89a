// Package firestore implements the repository registry on Cloud Firestore. Conditional writes
// run inside Firestore transactions so that read-check-write sequences are serialised.
package firestore

import (
	"context"
	"errors"
	"slices"
	"time"

	pfirestore "github.com/furnishop/api/internal/platform/firestore"
	"github.com/furnishop/api/internal/repositories"
)

const (
	cartsCollection          = "carts"
	variationsCollection     = "variations"
	productsCollection       = "products"
	ordersCollection         = "orders"
	orderCodesCollection     = "orderCodes"
	gatewayTransCollection   = "gatewayTransIds"
	promotionsCollection     = "promotions"
	purchaseLedgerCollection = "purchaseLedger"
)

// Store is a repositories.Registry backed by Firestore.
type Store struct {
	provider   *pfirestore.Provider
	txOptions  []pfirestore.TxOption
	carts      *pfirestore.BaseRepository[cartDocument]
	variations *pfirestore.BaseRepository[variationDocument]
	products   *pfirestore.BaseRepository[productDocument]
	orders     *pfirestore.BaseRepository[orderDocument]
	orderCodes *pfirestore.BaseRepository[uniqueKeyDocument]
	transIDs   *pfirestore.BaseRepository[uniqueKeyDocument]
	promotions *pfirestore.BaseRepository[promotionDocument]
	ledger     *pfirestore.BaseRepository[ledgerDocument]
}

var _ repositories.Registry = (*Store)(nil)

// New constructs a Store over the shared provider.
func New(provider *pfirestore.Provider, txTimeout time.Duration) (*Store, error) {
	if provider == nil {
		return nil, errors.New("firestore store requires provider")
	}
	return &Store{
		provider:   provider,
		txOptions:  []pfirestore.TxOption{pfirestore.WithTxTimeout(txTimeout)},
		carts:      pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection, nil, nil),
		variations: pfirestore.NewBaseRepository[variationDocument](provider, variationsCollection, nil, nil),
		products:   pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		orders:     pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		orderCodes: pfirestore.NewBaseRepository[uniqueKeyDocument](provider, orderCodesCollection, nil, nil),
		transIDs:   pfirestore.NewBaseRepository[uniqueKeyDocument](provider, gatewayTransCollection, nil, nil),
		promotions: pfirestore.NewBaseRepository[promotionDocument](provider, promotionsCollection, nil, nil),
		ledger:     pfirestore.NewBaseRepository[ledgerDocument](provider, purchaseLedgerCollection, nil, nil),
	}, nil
}

func (s *Store) Close(ctx context.Context) error { return s.provider.Close(ctx) }

func (s *Store) tx(op string) []pfirestore.TxOption {
	return append(slices.Clone(s.txOptions), pfirestore.WithTxOp(op))
}
func (s *Store) Ping(ctx context.Context) error  { return s.provider.Ping(ctx) }

// RunInTx runs fn directly. Each repository call is its own Firestore transaction; callers
// rely on compensation across calls.
func (s *Store) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (s *Store) Carts() repositories.CartRepository           { return &cartRepository{s} }
func (s *Store) Catalog() repositories.CatalogRepository      { return &catalogRepository{s} }
func (s *Store) Inventory() repositories.InventoryRepository  { return &inventoryRepository{s} }
func (s *Store) Orders() repositories.OrderRepository         { return &orderRepository{s} }
func (s *Store) Promotions() repositories.PromotionRepository { return &promotionRepository{s} }
func (s *Store) PurchaseCounters() repositories.PurchaseCounterRepository {
	return &purchaseCounterRepository{s}
}
