package di

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/tablehub/api/internal/platform/cache"
	"github.com/tablehub/api/internal/platform/config"
	"github.com/tablehub/api/internal/platform/events"
	pfirestore "github.com/tablehub/api/internal/platform/firestore"
	"github.com/tablehub/api/internal/platform/observability"
	"github.com/tablehub/api/internal/repositories"
	repofirestore "github.com/tablehub/api/internal/repositories/firestore"
	"github.com/tablehub/api/internal/services"
)

// Repositories bundles the storage-layer contracts the services rely upon.
type Repositories struct {
	Orders    repositories.OrderRepository
	Tables    repositories.TableRepository
	MenuItems repositories.MenuItemRepository
	Sessions  repositories.CustomerSessionRepository
	Counters  repositories.CounterRepository
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders services.OrderService
	Bulk   services.BulkOrderService
	Tables services.TableService
}

// Container wires repositories, services, and background infrastructure for
// runtime use.
type Container struct {
	Config       config.Config
	Provider     *pfirestore.Provider
	PubSub       *pubsub.Client
	Cache        *cache.Service
	Dispatcher   *services.SideEffectDispatcher
	Repositories Repositories
	Services     Services
}

// NewContainer constructs the runtime dependencies from configuration.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		return nil, errors.New("di: logger is required")
	}
	eventLog := observability.EventLogger(logger)

	provider := pfirestore.NewProvider(cfg.Firestore)

	var pubsubClient *pubsub.Client
	var emitter services.EventEmitter
	var notifier services.Notifier
	if cfg.PubSub.ProjectID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("di: pubsub client: %w", err)
		}
		pubsubClient = client

		orderEmitter, err := events.NewPubSubOrderEmitter(client.Topic(cfg.PubSub.OrderEventsTopic))
		if err != nil {
			return nil, err
		}
		emitter = orderEmitter

		pubsubNotifier, err := events.NewPubSubNotifier(client.Topic(cfg.PubSub.NotificationTopic))
		if err != nil {
			return nil, err
		}
		notifier = pubsubNotifier
	}

	firestoreClient, err := provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	sharedStore, err := cache.NewFirestoreStore(firestoreClient)
	if err != nil {
		return nil, err
	}
	cacheService, err := cache.NewService(sharedStore, cache.NewMemoryStore(),
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithSharedTimeout(cfg.Cache.SharedTimeout),
		cache.WithSweepInterval(cfg.Cache.SweepInterval),
		cache.WithCleanupBatchSize(cfg.Cache.CleanupBatchSize),
		cache.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	dispatcher := services.NewSideEffectDispatcher(services.SideEffectDispatcherDeps{
		QueueSize: cfg.Dispatcher.QueueSize,
		Workers:   cfg.Dispatcher.Workers,
		Logger:    eventLog,
	})

	orderRepo, err := repofirestore.NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	tableRepo, err := repofirestore.NewTableRepository(provider)
	if err != nil {
		return nil, err
	}
	menuRepo, err := repofirestore.NewMenuItemRepository(provider)
	if err != nil {
		return nil, err
	}
	sessionRepo, err := repofirestore.NewCustomerSessionRepository(provider)
	if err != nil {
		return nil, err
	}
	counterRepo, err := repofirestore.NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	unitOfWork := pfirestore.NewUnitOfWork(provider)

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     orderRepo,
		Tables:     tableRepo,
		MenuItems:  menuRepo,
		Sessions:   sessionRepo,
		Counters:   counterRepo,
		UnitOfWork: unitOfWork,
		Cache:      cacheService,
		Events:     emitter,
		Notifier:   notifier,
		Effects:    dispatcher,
		Config: services.OrderServiceConfig{
			NumberPrefix:       cfg.Orders.NumberPrefix,
			TaxRateBasisPoints: cfg.Orders.TaxRateBPS,
			CreateAttempts:     cfg.Orders.CreateAttempts,
			CreateBaseDelay:    cfg.Orders.CreateBaseDelay,
			CreateMaxElapsed:   cfg.Orders.CreateMaxElapsed,
			CacheTTL:           cfg.Cache.DefaultTTL,
		},
		Logger: eventLog,
	})
	if err != nil {
		return nil, err
	}

	bulkSvc, err := services.NewBulkOrderService(services.BulkOrderServiceDeps{
		Orders:     orderRepo,
		Tables:     tableRepo,
		Sessions:   sessionRepo,
		UnitOfWork: unitOfWork,
		Cache:      cacheService,
		Events:     emitter,
		Notifier:   notifier,
		Effects:    dispatcher,
		Config: services.BulkOrderServiceConfig{
			MaxBatch:  cfg.Orders.BulkMaxBatch,
			ChunkSize: cfg.Orders.BulkChunkSize,
			CacheTTL:  cfg.Cache.DefaultTTL,
		},
		Logger: eventLog,
	})
	if err != nil {
		return nil, err
	}

	tableSvc, err := services.NewTableService(services.TableServiceDeps{
		Tables:   tableRepo,
		Cache:    cacheService,
		CacheTTL: cfg.Cache.DefaultTTL,
		Logger:   eventLog,
	})
	if err != nil {
		return nil, err
	}

	cacheService.Start()

	return &Container{
		Config:     cfg,
		Provider:   provider,
		PubSub:     pubsubClient,
		Cache:      cacheService,
		Dispatcher: dispatcher,
		Repositories: Repositories{
			Orders:    orderRepo,
			Tables:    tableRepo,
			MenuItems: menuRepo,
			Sessions:  sessionRepo,
			Counters:  counterRepo,
		},
		Services: Services{
			Orders: orderSvc,
			Bulk:   bulkSvc,
			Tables: tableSvc,
		},
	}, nil
}

// Close drains background workers and releases clients. Safe to call once
// during shutdown.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}

	var errs []error
	if c.Dispatcher != nil {
		c.Dispatcher.Close()
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.PubSub != nil {
		if err := c.PubSub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Provider != nil {
		if err := c.Provider.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
