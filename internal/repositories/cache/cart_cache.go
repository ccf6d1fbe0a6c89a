package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/repositories"
)

// ErrCacheMiss is returned when no cached cart exists for the key.
var ErrCacheMiss = errors.New("cache miss")

const (
	defaultBaseTTL   = 15 * time.Minute
	defaultMaxJitter = 5 * time.Minute
)

// CartCache stores serialised carts in Redis under cart:<storage id> keys.
type CartCache struct {
	client    redis.UniversalClient
	baseTTL   time.Duration
	maxJitter time.Duration
}

// Option customises CartCache.
type Option func(*CartCache)

// WithTTL overrides the base expiry and the random jitter added on top of it.
func WithTTL(base, jitter time.Duration) Option {
	return func(c *CartCache) {
		if base > 0 {
			c.baseTTL = base
		}
		if jitter >= 0 {
			c.maxJitter = jitter
		}
	}
}

// NewCartCache wraps a redis client.
func NewCartCache(client redis.UniversalClient, opts ...Option) *CartCache {
	c := &CartCache{client: client, baseTTL: defaultBaseTTL, maxJitter: defaultMaxJitter}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type cachedItem struct {
	VariationID string    `json:"variationId"`
	Quantity    int       `json:"quantity"`
	AddedAt     time.Time `json:"addedAt"`
}

type cachedCart struct {
	ID        string       `json:"id"`
	OwnerKind string       `json:"ownerKind"`
	OwnerID   string       `json:"ownerId"`
	Items     []cachedItem `json:"items"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func (c *CartCache) Get(ctx context.Context, cartID string) (domain.Cart, error) {
	data, err := c.client.Get(ctx, cacheKey(cartID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Cart{}, ErrCacheMiss
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("redis get failed: %w", err)
	}

	var doc cachedCart
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.Cart{}, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	cart := domain.Cart{
		ID:        doc.ID,
		OwnerKind: domain.CartOwnerKind(doc.OwnerKind),
		OwnerID:   doc.OwnerID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.CartItem(item))
	}
	return cart, nil
}

func (c *CartCache) Set(ctx context.Context, cart domain.Cart) error {
	doc := cachedCart{
		ID:        cart.ID,
		OwnerKind: string(cart.OwnerKind),
		OwnerID:   cart.OwnerID,
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
		Items:     make([]cachedItem, 0, len(cart.Items)),
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cachedItem(item))
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(cart.ID), payload, c.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *CartCache) Delete(ctx context.Context, cartID string) error {
	if err := c.client.Del(ctx, cacheKey(cartID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *CartCache) ttl() time.Duration {
	if c.maxJitter <= 0 {
		return c.baseTTL
	}
	return c.baseTTL + rand.N(c.maxJitter)
}

func cacheKey(cartID string) string {
	return fmt.Sprintf("cart:%s", cartID)
}

// CartRepository is a read-through, write-through cache in front of another cart repository.
// Cache failures on reads and saves are logged and never fail the request.
type CartRepository struct {
	next   repositories.CartRepository
	cache  *CartCache
	logger *zap.Logger
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository decorates next with cache.
func NewCartRepository(next repositories.CartRepository, cache *CartCache, logger *zap.Logger) (*CartRepository, error) {
	if next == nil {
		return nil, errors.New("cache: cart repository is required")
	}
	if cache == nil {
		return nil, errors.New("cache: cart cache is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartRepository{next: next, cache: cache, logger: logger}, nil
}

func (r *CartRepository) Get(ctx context.Context, cartID string) (domain.Cart, error) {
	cart, err := r.cache.Get(ctx, cartID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn("cart cache read failed", zap.String("cartId", cartID), zap.Error(err))
	}

	cart, err = r.next.Get(ctx, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := r.cache.Set(ctx, cart); err != nil {
		r.logger.Warn("cart cache fill failed", zap.String("cartId", cartID), zap.Error(err))
	}
	return cart, nil
}

func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	saved, err := r.next.Save(ctx, cart)
	if err != nil {
		r.invalidate(ctx, cart.ID)
		return domain.Cart{}, err
	}
	if err := r.cache.Set(ctx, saved); err != nil {
		r.logger.Warn("cart cache write failed", zap.String("cartId", saved.ID), zap.Error(err))
		r.invalidate(ctx, saved.ID)
	}
	return saved, nil
}

// Delete removes the stored cart before the cache entry. A failed invalidation is returned
// so callers never report a deleted cart that is still being served.
func (r *CartRepository) Delete(ctx context.Context, cartID string) error {
	if err := r.next.Delete(ctx, cartID); err != nil {
		r.invalidate(ctx, cartID)
		return err
	}
	if err := r.cache.Delete(ctx, cartID); err != nil {
		r.logger.Error("cart cache invalidate after delete failed", zap.String("cartId", cartID), zap.Error(err))
		return fmt.Errorf("cart %s deleted but cache invalidation failed: %w", cartID, err)
	}
	return nil
}

// Authoritative returns a view that reads carts from the backing store while keeping writes
// and deletes cache-coherent. Checkout uses it so a stale cache entry can never be ordered.
func (r *CartRepository) Authoritative() repositories.CartRepository {
	return authoritativeCarts{r}
}

type authoritativeCarts struct{ *CartRepository }

func (a authoritativeCarts) Get(ctx context.Context, cartID string) (domain.Cart, error) {
	return a.next.Get(ctx, cartID)
}

func (r *CartRepository) invalidate(ctx context.Context, cartID string) {
	if err := r.cache.Delete(ctx, cartID); err != nil {
		r.logger.Warn("cart cache invalidate failed", zap.String("cartId", cartID), zap.Error(err))
	}
}
