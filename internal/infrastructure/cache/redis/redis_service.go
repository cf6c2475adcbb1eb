// internal/infrastructure/cache/redis/redis_service.go
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/config"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"

	"github.com/go-redis/redis/v8"
)

var (
	ErrAlreadyRunning = errors.New("redis service already running")
	ErrNotRunning     = errors.New("redis service is not running")
)

// RedisService owns the shared client used by the broker and the idempotency guard.
type RedisService struct {
	mu     sync.RWMutex
	config config.RedisConfig
	client *redis.Client
	state  ServiceState
}

type ServiceState string

const (
	StateStopped  ServiceState = "stopped"
	StateStarting ServiceState = "starting"
	StateRunning  ServiceState = "running"
	StateStopping ServiceState = "stopping"
	StateError    ServiceState = "error"
)

func NewRedisService(cfg config.RedisConfig) *RedisService {
	return &RedisService{
		config: cfg,
		state:  StateStopped,
	}
}

// Options builds the go-redis options from configuration.
func (rs *RedisService) Options() *redis.Options {
	c := rs.config
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Password: c.Password,
		DB:       c.DB,

		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,

		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolTimeout:  c.PoolTimeout,
		IdleTimeout:  c.IdleTimeout,

		MaxRetries:      c.MaxRetries,
		MinRetryBackoff: c.MinRetryBackoff,
		MaxRetryBackoff: c.MaxRetryBackoff,
	}
}

// Start creates the client and pings it. A failed ping keeps the client so the
// broker can keep probing it and recover once Redis is reachable.
func (rs *RedisService) Start() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.state == StateRunning {
		return ErrAlreadyRunning
	}

	logger.Info("🔄 Starting Redis service...")
	rs.state = StateStarting

	options := rs.Options()
	rs.client = redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("📡 Connecting to Redis: %s (DB: %d)", options.Addr, options.DB)

	if err := rs.client.Ping(ctx).Err(); err != nil {
		rs.state = StateError
		logger.Warn("⚠️ Redis unreachable at %s: %v", options.Addr, err)
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	rs.state = StateRunning
	logger.Info("✅ Connected to Redis (pool size %d)", options.PoolSize)
	return nil
}

func (rs *RedisService) Stop() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.client == nil {
		return ErrNotRunning
	}

	logger.Info("🛑 Stopping Redis service...")
	rs.state = StateStopping

	if err := rs.client.Close(); err != nil {
		rs.state = StateError
		logger.Error("❌ Failed to close Redis client: %v", err)
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	rs.client = nil
	rs.state = StateStopped
	logger.Info("✅ Redis service stopped")
	return nil
}

func (rs *RedisService) GetClient() *redis.Client {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.client
}

func (rs *RedisService) State() ServiceState {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.state
}

// HealthCheck pings Redis and refreshes the service state.
func (rs *RedisService) HealthCheck() bool {
	client := rs.GetClient()
	if client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := client.Ping(ctx).Err()

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err != nil {
		logger.Debug("⚠️ Redis health check failed: %v", err)
		rs.state = StateError
		return false
	}
	rs.state = StateRunning
	return true
}

func (rs *RedisService) GetStats() map[string]interface{} {
	client := rs.GetClient()
	stats := map[string]interface{}{
		"state":     rs.State(),
		"connected": client != nil,
		"addr":      fmt.Sprintf("%s:%d", rs.config.Host, rs.config.Port),
	}

	if client != nil {
		poolStats := client.PoolStats()
		stats["pool_hits"] = poolStats.Hits
		stats["pool_misses"] = poolStats.Misses
		stats["pool_timeouts"] = poolStats.Timeouts
		stats["pool_total_conns"] = poolStats.TotalConns
		stats["pool_idle_conns"] = poolStats.IdleConns
	}
	return stats
}

func (rs *RedisService) GetCache() *Cache {
	client := rs.GetClient()
	if client == nil {
		return nil
	}
	return NewCacheWithClient(client, rs.config.KeyPrefix)
}

func (rs *RedisService) Name() string {
	return "RedisService"
}

func (rs *RedisService) IsRunning() bool {
	return rs.State() == StateRunning
}
