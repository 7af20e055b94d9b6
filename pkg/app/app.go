// Package app assembles the stores, integrations and checkout service that
// the freshcart binaries share.
package app

import (
	"context"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/freshcart/pkg/checkout"
	"github.com/example/freshcart/pkg/config"
	"github.com/example/freshcart/pkg/events"
	"github.com/example/freshcart/pkg/grpc"
	"github.com/example/freshcart/pkg/models"
	"github.com/example/freshcart/pkg/notify"
	"github.com/example/freshcart/pkg/repository"
	"github.com/example/freshcart/pkg/service"
	"go.uber.org/zap"
)

// OrderStore is everything the engine and its side effects persist to.
type OrderStore interface {
	checkout.Store
	Ping(ctx context.Context) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	InsertNotifications(ctx context.Context, notifications []models.Notification) error
	ListActiveSubscriptions(ctx context.Context) ([]models.Subscription, error)
	HasSubscriptionOrder(ctx context.Context, subscriptionID, deliveryDate string) (bool, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListAdmins(ctx context.Context) ([]models.User, error)
	Ping(ctx context.Context) error
}

type App struct {
	Config  *config.Config
	Store   OrderStore
	Users   UserDirectory
	Redis   *repository.RedisRepository
	Service *service.CheckoutService
	Checks  []grpc.Check

	// Memory is set when storage.driver is memory.
	Memory *repository.MemoryStore

	logger     *zap.Logger
	system     *actor.ActorSystem
	dispatcher *notify.Dispatcher
	publisher  *events.Publisher
	closers    []func(ctx context.Context) error
}

// New connects every configured backend and builds the checkout service.
// Optional integrations (Redis, Kafka, MySQL) are skipped when their
// address is empty.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}
	if err := a.openStores(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.openIntegrations(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Storage.Driver {
	case config.DriverMongo:
		mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, mongoRepo.Close)
		if err := mongoRepo.EnsureIndexes(ctx); err != nil {
			return err
		}
		a.Store = mongoRepo
		a.logger.Info("MongoDB connected", zap.String("database", cfg.MongoDB.Database))
	default:
		a.Memory = repository.NewMemoryStore()
		a.Store = a.Memory
		a.logger.Warn("Using in-memory storage, orders are lost on restart")
	}
	a.Checks = append(a.Checks, grpc.Check{Name: "orders", Pinger: a.Store})

	if cfg.MySQL.Host == "" {
		if a.Memory == nil {
			a.Memory = repository.NewMemoryStore()
		}
		a.Users = a.Memory
		a.logger.Warn("mysql.host not set, using in-memory user directory")
		return nil
	}
	db, err := repository.OpenMySQL(&cfg.MySQL)
	if err != nil {
		return err
	}
	users := repository.NewUserDirectory(db)
	a.closers = append(a.closers, func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	if err := users.Migrate(); err != nil {
		return err
	}
	a.Users = users
	a.Checks = append(a.Checks, grpc.Check{Name: "users", Pinger: users})
	return nil
}

func (a *App) openIntegrations(ctx context.Context) error {
	cfg := a.Config

	var cache service.OrderCache
	if cfg.Redis.Addr != "" {
		a.Redis = repository.NewRedisRepository(&cfg.Redis)
		a.closers = append(a.closers, func(context.Context) error { return a.Redis.Close() })
		if err := a.Redis.Ping(ctx); err != nil {
			a.logger.Warn("Redis connection failed", zap.Error(err))
		} else {
			a.logger.Info("Redis connected successfully")
		}
		cache = a.Redis
		a.Checks = append(a.Checks, grpc.Check{Name: "redis", Pinger: a.Redis})
	}

	var publisher service.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		a.publisher = events.NewKafkaPublisher(&cfg.Kafka, cfg.Server.Name, a.logger)
		publisher = a.publisher
	}

	a.system = actor.NewActorSystem()
	notifier := notify.NewNotifier(a.Users, a.Store, a.logger)
	dispatcher, err := notify.NewDispatcher(a.system, notifier, cfg.Checkout.NotificationTimeout, a.logger)
	if err != nil {
		return err
	}
	a.dispatcher = dispatcher

	orch := checkout.NewOrchestrator(a.Store, a.logger,
		checkout.WithDefaultCutCharge(cfg.Checkout.DefaultCutCharge))
	a.Service = service.NewCheckoutService(orch, a.Store, dispatcher, publisher, cache, service.Options{
		MinOrderValue: cfg.Checkout.MinOrderValue,
		CommitTimeout: cfg.Checkout.CommitTimeout,
	}, a.logger)
	return nil
}

// Close drains pending notifications, then releases connections in reverse
// order of opening.
func (a *App) Close(ctx context.Context) {
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("Failed to close event publisher", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("Failed to close connection", zap.Error(err))
		}
	}
}
