package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/furnishop/api/internal/payments"
	"github.com/furnishop/api/internal/platform/config"
	pfirestore "github.com/furnishop/api/internal/platform/firestore"
	"github.com/furnishop/api/internal/platform/idempotency"
	"github.com/furnishop/api/internal/platform/jobs"
	"github.com/furnishop/api/internal/platform/observability"
	"github.com/furnishop/api/internal/repositories"
	"github.com/furnishop/api/internal/repositories/cache"
	firestorerepo "github.com/furnishop/api/internal/repositories/firestore"
	"github.com/furnishop/api/internal/repositories/memory"
	"github.com/furnishop/api/internal/repositories/mongostore"
	"github.com/furnishop/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Catalog    services.CatalogService
	Inventory  services.InventoryService
	Promotions services.PromotionService
	Cart       services.CartService
	Orders     services.OrderService
	Payments   services.PaymentService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Idempotency  idempotency.Store
	Health       repositories.HealthRepository

	logger  *zap.Logger
	closers []func(context.Context) error
}

// Option overrides a dependency that would otherwise be built from configuration.
type Option func(*containerOptions)

type containerOptions struct {
	registry  repositories.Registry
	redis     redis.UniversalClient
	gateway   payments.Gateway
	publisher services.OrderEventPublisher
	logger    *zap.Logger
	clock     func() time.Time
}

// WithRegistry supplies a prebuilt repository registry instead of opening Store.Driver.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *containerOptions) { o.registry = reg }
}

// WithRedisClient supplies the Redis client used by the cart cache and idempotency store.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *containerOptions) { o.redis = client }
}

// WithGateway replaces the HTTP gateway client.
func WithGateway(gw payments.Gateway) Option {
	return func(o *containerOptions) { o.gateway = gw }
}

// WithEventPublisher replaces the Pub/Sub publisher.
func WithEventPublisher(p services.OrderEventPublisher) Option {
	return func(o *containerOptions) { o.publisher = p }
}

// WithLogger sets the base logger for services and infrastructure.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) { o.logger = logger }
}

// WithClock overrides the service clock.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) { o.clock = clock }
}

// NewContainer constructs the runtime dependencies. Anything opened before a failure is
// closed again before the error is returned.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (_ *Container, err error) {
	o := containerOptions{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	c := &Container{Config: cfg, logger: o.logger}
	defer func() {
		if err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
		}
	}()

	var provider *pfirestore.Provider
	reg := o.registry
	if reg == nil {
		reg, provider, err = c.openRegistry(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	c.Repositories = reg
	c.closers = append(c.closers, reg.Close)

	rdb := o.redis
	if rdb == nil && cfg.Redis.Addr != "" {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func(context.Context) error { return rdb.Close() })
	}

	publisher := o.publisher
	if publisher == nil && cfg.PubSub.ProjectID != "" {
		publisher, err = c.openPublisher(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
	}

	gateway := o.gateway
	if gateway == nil {
		gateway, err = payments.NewGatewayClient(payments.GatewayConfig{
			AppID:           cfg.Gateway.AppID,
			Endpoint:        cfg.Gateway.Endpoint,
			CallbackURL:     cfg.Gateway.CallbackURL,
			Key1:            cfg.Gateway.Key1,
			Key2:            cfg.Gateway.Key2,
			Timeout:         cfg.Gateway.Timeout,
			BreakerFailures: uint32(cfg.Gateway.BreakerFailures),
			BreakerOpenFor:  cfg.Gateway.BreakerOpenFor,
			Logger:          payments.GatewayLogger(observability.ServiceLogger(o.logger, "gateway")),
		})
		if err != nil {
			return nil, fmt.Errorf("build gateway client: %w", err)
		}
	}

	c.Services, err = buildServices(reg, rdb, gateway, publisher, cfg, o)
	if err != nil {
		return nil, err
	}

	c.Idempotency, err = c.openIdempotencyStore(ctx, cfg, rdb, provider)
	if err != nil {
		return nil, err
	}

	checks := []repositories.DependencyCheck{{Name: "store", Timeout: cfg.Store.Timeout, Check: reg.Ping}}
	if rdb != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Optional: true,
			Check:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	c.Health, err = repositories.NewDependencyHealthRepository(checks, o.clock)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// StartIdempotencyCleanup sweeps expired idempotency keys until ctx is canceled.
func (c *Container) StartIdempotencyCleanup(ctx context.Context) {
	interval := c.Config.Idempotency.CleanupInterval
	if c.Idempotency == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				removed, err := c.Idempotency.CleanupExpired(ctx, now.UTC(), c.Config.Idempotency.CleanupBatchSize)
				if err != nil {
					c.logger.Warn("idempotency cleanup failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					c.logger.Debug("idempotency keys removed", zap.Int("count", removed))
				}
			}
		}
	}()
}

func (c *Container) openRegistry(ctx context.Context, cfg config.Config) (repositories.Registry, *pfirestore.Provider, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		c.logger.Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(), nil, nil
	case config.StoreDriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Store.Timeout)
		defer cancel()
		db, err := mongostore.Connect(connectCtx, mongostore.ConnectionOptions{
			URI:            cfg.Store.MongoURI,
			Database:       cfg.Store.MongoDatabase,
			ConnectTimeout: cfg.Store.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := mongostore.EnsureIndexes(connectCtx, db); err != nil {
			_ = db.Client().Disconnect(context.WithoutCancel(ctx))
			return nil, nil, fmt.Errorf("ensure mongodb indexes: %w", err)
		}
		store, err := mongostore.New(db)
		if err != nil {
			_ = db.Client().Disconnect(context.WithoutCancel(ctx))
			return nil, nil, err
		}
		return store, nil, nil
	case config.StoreDriverFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		store, err := firestorerepo.New(provider, cfg.Store.Timeout)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, nil, err
		}
		return store, provider, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

func (c *Container) openPublisher(ctx context.Context, cfg config.PubSubConfig) (services.OrderEventPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.Topic)
	c.closers = append(c.closers, func(context.Context) error {
		topic.Stop()
		return client.Close()
	})
	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

func (c *Container) openIdempotencyStore(ctx context.Context, cfg config.Config, rdb redis.UniversalClient, provider *pfirestore.Provider) (idempotency.Store, error) {
	switch cfg.Idempotency.Driver {
	case "", "memory":
		return idempotency.NewMemoryStore(), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("idempotency: redis driver requires API_REDIS_ADDR")
		}
		return idempotency.NewRedisStore(rdb), nil
	case "firestore":
		if provider == nil {
			provider = pfirestore.NewProvider(cfg.Firestore)
			c.closers = append(c.closers, provider.Close)
		}
		client, err := provider.Client(ctx)
		if err != nil {
			return nil, fmt.Errorf("idempotency: firestore client: %w", err)
		}
		return idempotency.NewFirestoreStore(client), nil
	default:
		return nil, fmt.Errorf("unsupported idempotency driver %q", cfg.Idempotency.Driver)
	}
}

func buildServices(reg repositories.Registry, rdb redis.UniversalClient, gateway payments.Gateway, publisher services.OrderEventPublisher, cfg config.Config, o containerOptions) (Services, error) {
	var svc Services
	logger := o.logger

	carts := reg.Carts()
	checkoutCarts := carts
	if rdb != nil {
		cartCache := cache.NewCartCache(rdb, cache.WithTTL(cfg.Redis.CartTTL, cfg.Redis.CartJitter))
		cached, err := cache.NewCartRepository(carts, cartCache, logger.Named("cart_cache"))
		if err != nil {
			return Services{}, fmt.Errorf("build cart cache: %w", err)
		}
		carts = cached
		checkoutCarts = cached.Authoritative()
	}

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Catalog: reg.Catalog(),
		Logger:  observability.ServiceLogger(logger, "catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: reg.Inventory(),
		Logger:    observability.ServiceLogger(logger, "inventory"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	promotionSvc, err := services.NewPromotionService(services.PromotionServiceDeps{
		Promotions: reg.Promotions(),
		Clock:      o.clock,
		Logger:     observability.ServiceLogger(logger, "promotions"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}
	svc.Promotions = promotionSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:    carts,
		Catalog:  catalogSvc,
		Clock:    o.clock,
		Currency: cfg.Checkout.Currency,
		Logger:   observability.ServiceLogger(logger, "cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:            reg.Orders(),
		Carts:             checkoutCarts,
		PurchaseCounters:  reg.PurchaseCounters(),
		Catalog:           catalogSvc,
		Inventory:         inventorySvc,
		Promotions:        promotionSvc,
		Events:            publisher,
		Clock:             o.clock,
		OrderCodeAttempts: cfg.Checkout.OrderCodeAttempts,
		Currency:          cfg.Checkout.Currency,
		Logger:            observability.ServiceLogger(logger, "orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:       reg.Orders(),
		OrderService: orderSvc,
		Gateway:      gateway,
		Events:       publisher,
		Clock:        o.clock,
		StoreName:    cfg.Gateway.StoreName,
		Logger:       observability.ServiceLogger(logger, "payments"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	return svc, nil
}
