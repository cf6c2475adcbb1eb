// application/composition/container.go
package composition

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/44dummies/tradermind-server-sub000/application/scheduler"
	"github.com/44dummies/tradermind-server-sub000/application/services/orchestrator"
	"github.com/44dummies/tradermind-server-sub000/application/workers"
	"github.com/44dummies/tradermind-server-sub000/internal/adapters/execution"
	"github.com/44dummies/tradermind-server-sub000/internal/adapters/market"
	"github.com/44dummies/tradermind-server-sub000/internal/adapters/notification"
	"github.com/44dummies/tradermind-server-sub000/internal/api"
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/risk"
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/session"
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals/engine"
	redis_cache "github.com/44dummies/tradermind-server-sub000/internal/infrastructure/cache/redis"
	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/config"
	storage "github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/in_memory_storage"
	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres"
	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/database"
	postgres_factory "github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/factory"
	notification_repo "github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/repository/notification"
	trade_repo "github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/repository/trade"
	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/transport/broker"
	eventbus "github.com/44dummies/tradermind-server-sub000/internal/infrastructure/transport/event_bus"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// Container owns every long-lived component of the process.
type Container struct {
	Config *config.Config

	// Infrastructure
	Redis        *redis_cache.RedisService
	Database     *database.DatabaseService
	Repositories *postgres_factory.RepositoryFactory
	Bus          *eventbus.EventBus
	Broker       *broker.Broker

	// Stores
	SessionStore      session.Store
	TradeStore        trade_repo.TradeRepository
	NotificationStore notification_repo.NotificationRepository
	Ticks             *storage.InMemoryTickStorage

	// Domain
	Sessions *session.Manager
	Engine   *engine.Engine
	Gate     *risk.Gate
	Ledger   *risk.Ledger

	// Adapters
	Source        market.TickSource
	DryRun        *execution.DryRun
	Backend       execution.Backend
	Notifications *notification.CompositeNotificationService
	Hub           *notification.Hub

	// Application
	Workers   *workers.Pool
	Bot       *orchestrator.BotEngine
	Scheduler *scheduler.Scheduler
	API       *api.Server
}

// NewContainer builds the whole graph. Redis and PostgreSQL are optional:
// without Redis the broker runs in direct mode, without PostgreSQL the
// in-memory stores are used.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	c := &Container{Config: cfg}

	c.buildTransport()

	if err := c.buildStores(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.buildDomain(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.buildAdapters(ctx); err != nil {
		c.Close()
		return nil, err
	}
	c.buildApplication(ctx)

	logger.Info("✅ Container ready (broker mode %s)", c.Broker.Mode())
	return c, nil
}

func (c *Container) buildTransport() {
	cfg := c.Config

	var dedup broker.Deduplicator = broker.NewMemoryDeduplicator(cfg.Broker.DedupTTL)
	if cfg.Redis.Enabled {
		c.Redis = redis_cache.NewRedisService(cfg.Redis)
		if err := c.Redis.Start(); err != nil {
			// the broker keeps probing and switches to streams once Redis answers
			logger.Warn("⚠️ Starting in direct mode: %v", err)
		}
		cache := redis_cache.NewCacheWithClient(c.Redis.GetClient(), cfg.Redis.KeyPrefix)
		dedup = redis_cache.NewIdempotencyStore(cache, cfg.Broker.DedupTTL)
	} else {
		logger.Info("ℹ️ Redis disabled, broker pinned to direct mode")
	}

	c.Bus = eventbus.NewEventBus(eventbus.EventBusConfig{
		EnableMetrics:   true,
		EnableLogging:   cfg.IsDev(),
		MetricsInterval: eventbus.DefaultConfig.MetricsInterval,
	})

	c.Broker = broker.New(c.redisClient(), c.Bus, dedup, broker.Config{
		Group:          cfg.Broker.Group,
		StreamPrefix:   cfg.Broker.StreamPrefix,
		BatchSize:      cfg.Broker.BatchSize,
		Block:          cfg.Broker.Block,
		ClaimMinIdle:   cfg.Broker.ClaimMinIdle,
		MaxLen:         cfg.Broker.MaxLen,
		HealthInterval: cfg.Broker.HealthInterval,
		MaxDeliveries:  cfg.Broker.MaxDeliveries,
	})
}

func (c *Container) buildStores(ctx context.Context) error {
	cfg := c.Config
	c.Ticks = storage.NewInMemoryTickStorage(storage.WithMaxHistoryPerSymbol(cfg.Bot.MaxHistory))

	if !cfg.Database.Enabled {
		logger.Info("ℹ️ PostgreSQL disabled, using in-memory stores")
		c.SessionStore = storage.NewSessionStore()
		c.TradeStore = storage.NewTradeStore()
		c.NotificationStore = storage.NewNotificationStore()
		return nil
	}

	c.Database = database.NewDatabaseService(cfg.Database)
	if err := c.Database.Start(); err != nil {
		return fmt.Errorf("start database: %w", err)
	}
	if cfg.Database.EnableAutoMigrate {
		if err := postgres.RunMigrations(ctx, c.Database.GetDB()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	factory, err := postgres_factory.NewRepositoryFactory(c.Database)
	if err != nil {
		return err
	}
	c.Repositories = factory

	if c.SessionStore, err = factory.SessionStore(); err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	if c.TradeStore, err = factory.TradeRepository(); err != nil {
		return fmt.Errorf("trade repository: %w", err)
	}
	if c.NotificationStore, err = factory.NotificationRepository(); err != nil {
		return fmt.Errorf("notification repository: %w", err)
	}
	return nil
}

func (c *Container) buildDomain() error {
	cfg := c.Config

	engineCfg, err := engine.LoadConfig(cfg.Engine.TuningPath)
	if err != nil {
		return err
	}
	if c.Engine, err = engine.New(engineCfg); err != nil {
		return fmt.Errorf("signal engine: %w", err)
	}

	c.Ledger = risk.NewLedger()
	c.Gate = risk.NewGate(risk.Limits{
		MaxDailyLoss:         decimal.NewFromFloat(cfg.Risk.MaxDailyLoss),
		MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
		MaxPerAsset:          cfg.Risk.MaxPerAsset,
		MaxGlobal:            cfg.Risk.MaxGlobal,
	}, risk.NewCorrelationManager())
	return nil
}

func (c *Container) buildAdapters(ctx context.Context) error {
	cfg := c.Config

	source, err := market.NewTickSource(cfg.Market)
	if err != nil {
		return err
	}
	c.Source = source

	c.DryRun = execution.NewDryRun(execution.DryRunConfig{
		PayoutRatio:      decimal.NewFromFloat(cfg.Execution.PayoutRatio),
		ContractDuration: cfg.Execution.ContractDuration,
		DefaultBalance:   decimal.NewFromFloat(cfg.Execution.DefaultBalance),
	}, c.Ticks)
	c.Backend = execution.NewRateLimited(c.DryRun, cfg.Execution.RateLimit, cfg.Execution.RateBurst)

	// the simulator is also the balance source of acceptance checks
	c.Sessions = session.NewManager(c.SessionStore, c.DryRun, c.Broker)

	c.Notifications, c.Hub = notification.NewCompositeFromConfig(ctx, cfg.Push)
	return nil
}

func (c *Container) buildApplication(ctx context.Context) {
	cfg := c.Config

	var limiter workers.RateLimiter
	if c.Redis != nil && c.Redis.GetClient() != nil {
		limiter = c.Redis.GetCache()
	}

	c.Workers = workers.NewPool(
		workers.NewOrderManager(c.Broker, c.Sessions, c.Backend, c.Gate.Correlation()),
		workers.NewDBWorker(c.Broker, c.TradeStore, c.Sessions, workers.RetryConfig{
			Delay:        cfg.Workers.DBRetryDelay,
			MaxRetries:   cfg.Workers.DBMaxRetries,
			QueueSize:    cfg.Workers.DBRetryQueueSize,
			PollInterval: cfg.Workers.DBRetryPollPeriod,
		}),
		workers.NewNotificationWorker(c.Broker, c.NotificationStore, c.Notifications, limiter),
		workers.NewSessionWorker(c.Broker, c.Sessions, workers.RealClock),
	)

	c.Bot = orchestrator.New(orchestrator.Config{
		WarmupTicks:    cfg.Bot.WarmupTicks,
		ErrorThreshold: cfg.Bot.ErrorThreshold,
		MaxHistory:     cfg.Bot.MaxHistory,
	}, orchestrator.Dependencies{
		Sessions: c.Sessions,
		Source:   c.Source,
		History:  c.Ticks,
		Analyzer: c.Engine,
		Gate:     c.Gate,
		Ledger:   c.Ledger,
		Broker:   c.Broker,
	})

	c.Scheduler = scheduler.New()
	scheduler.RegisterAll(c.Scheduler, scheduler.Deps{
		Sessions: c.Sessions,
		Ledger:   c.Ledger,
		Exposure: c.Gate.Correlation(),
	})

	if cfg.HTTP.Enabled {
		c.API = api.NewServer(api.Deps{
			Bot:        c.Bot,
			Components: c.healthCheckers(),
			Stats:      c.stats(),
			Hub:        c.Hub,
			Mode:       func() string { return string(c.Broker.Mode()) },
			Context:    ctx,
		})
	}
}

func (c *Container) redisClient() *redis.Client {
	if c.Redis == nil {
		return nil
	}
	return c.Redis.GetClient()
}

func (c *Container) healthCheckers() []api.HealthChecker {
	checkers := []api.HealthChecker{c.Broker, c.Bot, c.Notifications}
	if c.Redis != nil {
		checkers = append(checkers, c.Redis)
	}
	if c.Database != nil {
		checkers = append(checkers, c.Database)
	}
	return checkers
}

func (c *Container) stats() map[string]api.StatsFunc {
	stats := map[string]api.StatsFunc{
		"broker":        func() interface{} { return c.Broker.GetMetrics() },
		"event_bus":     func() interface{} { return c.Bus.GetMetrics() },
		"workers":       func() interface{} { return c.Workers.Stats() },
		"engine":        func() interface{} { return c.Engine.GetStats() },
		"execution":     func() interface{} { return c.DryRun.GetStats() },
		"ticks":         func() interface{} { return c.Ticks.GetStats() },
		"notifications": func() interface{} { return c.Notifications.GetStats() },
		"scheduler":     func() interface{} { return c.Scheduler.Jobs() },
	}
	if c.Redis != nil {
		stats["redis"] = func() interface{} { return c.Redis.GetStats() }
	}
	if c.Database != nil {
		stats["database"] = func() interface{} { return c.Database.GetStats() }
	}
	return stats
}

// Close releases what NewContainer acquired. It is safe on a partly built container.
func (c *Container) Close() error {
	var errs []error
	if c.DryRun != nil {
		c.DryRun.Stop()
	}
	if c.Bus != nil {
		c.Bus.Stop()
	}
	if c.Database != nil && c.Database.IsRunning() {
		if err := c.Database.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Redis != nil && c.Redis.GetClient() != nil {
		if err := c.Redis.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
