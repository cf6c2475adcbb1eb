// internal/infrastructure/config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ============================================
// INFRASTRUCTURE
// ============================================

type DatabaseConfig struct {
	Host     string `mapstructure:"DB_HOST"`
	Port     int    `mapstructure:"DB_PORT"`
	User     string `mapstructure:"DB_USER"`
	Password string `mapstructure:"DB_PASSWORD"`
	Name     string `mapstructure:"DB_NAME"`
	SSLMode  string `mapstructure:"DB_SSLMODE"`

	// Disabled means in-memory stores are used instead.
	Enabled bool `mapstructure:"DB_ENABLED"`

	MaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	MaxConnLifetime time.Duration `mapstructure:"DB_MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `mapstructure:"DB_MAX_CONN_IDLE_TIME"`

	EnableAutoMigrate bool `mapstructure:"DB_ENABLE_AUTO_MIGRATE"`
}

type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`

	Enabled bool `mapstructure:"REDIS_ENABLED"`

	PoolSize        int           `mapstructure:"REDIS_POOL_SIZE"`
	MinIdleConns    int           `mapstructure:"REDIS_MIN_IDLE_CONNS"`
	MaxRetries      int           `mapstructure:"REDIS_MAX_RETRIES"`
	MinRetryBackoff time.Duration `mapstructure:"REDIS_MIN_RETRY_BACKOFF"`
	MaxRetryBackoff time.Duration `mapstructure:"REDIS_MAX_RETRY_BACKOFF"`
	DialTimeout     time.Duration `mapstructure:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout     time.Duration `mapstructure:"REDIS_READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"REDIS_WRITE_TIMEOUT"`
	PoolTimeout     time.Duration `mapstructure:"REDIS_POOL_TIMEOUT"`
	IdleTimeout     time.Duration `mapstructure:"REDIS_IDLE_TIMEOUT"`

	KeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`
}

// BrokerConfig tunes the Redis Streams consumer loops.
type BrokerConfig struct {
	Group          string        `mapstructure:"BROKER_GROUP"`
	StreamPrefix   string        `mapstructure:"BROKER_STREAM_PREFIX"`
	BatchSize      int64         `mapstructure:"BROKER_BATCH_SIZE"`
	Block          time.Duration `mapstructure:"BROKER_BLOCK"`
	ClaimMinIdle   time.Duration `mapstructure:"BROKER_CLAIM_MIN_IDLE"`
	MaxLen         int64         `mapstructure:"BROKER_MAX_LEN"`
	HealthInterval time.Duration `mapstructure:"BROKER_HEALTH_INTERVAL"`
	DedupTTL       time.Duration `mapstructure:"BROKER_DEDUP_TTL"`
	MaxDeliveries  int64         `mapstructure:"BROKER_MAX_DELIVERIES"`
}

// ============================================
// TRADING
// ============================================

type EngineConfig struct {
	TuningPath string `mapstructure:"ENGINE_CONFIG_PATH"`
}

type RiskConfig struct {
	MaxDailyLoss         float64 `mapstructure:"RISK_MAX_DAILY_LOSS"`
	MaxConsecutiveLosses int     `mapstructure:"RISK_MAX_CONSECUTIVE_LOSSES"`
	MaxPerAsset          int     `mapstructure:"RISK_MAX_PER_ASSET"`
	MaxGlobal            int     `mapstructure:"RISK_MAX_GLOBAL"`
}

type BotConfig struct {
	WarmupTicks    int  `mapstructure:"BOT_WARMUP_TICKS"`
	ErrorThreshold int  `mapstructure:"BOT_ERROR_THRESHOLD"`
	MaxHistory     int  `mapstructure:"BOT_MAX_HISTORY"`
	AutoStart      bool `mapstructure:"BOT_AUTO_START"`
}

type WorkersConfig struct {
	DBRetryDelay      time.Duration `mapstructure:"WORKER_DB_RETRY_DELAY"`
	DBMaxRetries      int           `mapstructure:"WORKER_DB_MAX_RETRIES"`
	DBRetryQueueSize  int           `mapstructure:"WORKER_DB_RETRY_QUEUE_SIZE"`
	DBRetryPollPeriod time.Duration `mapstructure:"WORKER_DB_RETRY_POLL"`
}

type ExecutionConfig struct {
	Mode             string        `mapstructure:"EXECUTION_MODE"` // dry_run
	RateLimit        float64       `mapstructure:"EXECUTION_RATE_LIMIT"`
	RateBurst        int           `mapstructure:"EXECUTION_RATE_BURST"`
	BaseStake        float64       `mapstructure:"EXECUTION_BASE_STAKE"`
	PayoutRatio      float64       `mapstructure:"EXECUTION_PAYOUT_RATIO"`
	ContractDuration time.Duration `mapstructure:"EXECUTION_CONTRACT_DURATION"`
	DefaultBalance   float64       `mapstructure:"EXECUTION_DEFAULT_BALANCE"`
}

type MarketConfig struct {
	Source         string        `mapstructure:"MARKET_SOURCE"` // websocket | mock
	WebSocketURL   string        `mapstructure:"MARKET_WS_URL"`
	ReconnectDelay time.Duration `mapstructure:"MARKET_RECONNECT_DELAY"`
	MockInterval   time.Duration `mapstructure:"MARKET_MOCK_INTERVAL"`
}

type PushConfig struct {
	FirebaseCredentials string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	WebSocketEnabled    bool   `mapstructure:"PUSH_WS_ENABLED"`
}

type HTTPConfig struct {
	Enabled bool   `mapstructure:"HTTP_ENABLED"`
	Port    int    `mapstructure:"HTTP_PORT"`
	Mode    string `mapstructure:"GIN_MODE"`
}

type LoggingConfig struct {
	Level string `mapstructure:"LOG_LEVEL"`
	File  string `mapstructure:"LOG_FILE"`
}

// Config is the whole process configuration.
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	Version     string `mapstructure:"VERSION"`

	Database  DatabaseConfig
	Redis     RedisConfig
	Broker    BrokerConfig
	Engine    EngineConfig
	Risk      RiskConfig
	Bot       BotConfig
	Workers   WorkersConfig
	Execution ExecutionConfig
	Market    MarketConfig
	Push      PushConfig
	HTTP      HTTPConfig
	Logging   LoggingConfig
}

// LoadConfig reads path with godotenv (missing file is not an error) and then the environment.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			log.Printf("⚠️  Config file %s not found, using environment variables", path)
		}
	}

	cfg := &Config{}
	cfg.Environment = getEnv("ENVIRONMENT", "development")
	cfg.Version = getEnv("VERSION", "1.0.0")

	// ======================
	// DATABASE
	// ======================
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "")
	cfg.Database.Password = getEnv("DB_PASSWORD", "")
	cfg.Database.Name = getEnv("DB_NAME", "tradermind")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 10)
	cfg.Database.MaxConnLifetime = getEnvDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute)
	cfg.Database.MaxConnIdleTime = getEnvDuration("DB_MAX_CONN_IDLE_TIME", 10*time.Minute)
	cfg.Database.EnableAutoMigrate = getEnvBool("DB_ENABLE_AUTO_MIGRATE", true)
	cfg.Database.Enabled = getEnvBool("DB_ENABLED", false)

	// ======================
	// REDIS
	// ======================
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnvInt("REDIS_PORT", 6379)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", 20)
	cfg.Redis.MinIdleConns = getEnvInt("REDIS_MIN_IDLE_CONNS", 5)
	cfg.Redis.MaxRetries = getEnvInt("REDIS_MAX_RETRIES", 3)
	cfg.Redis.MinRetryBackoff = getEnvDuration("REDIS_MIN_RETRY_BACKOFF", 8*time.Millisecond)
	cfg.Redis.MaxRetryBackoff = getEnvDuration("REDIS_MAX_RETRY_BACKOFF", 512*time.Millisecond)
	cfg.Redis.DialTimeout = getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second)
	cfg.Redis.ReadTimeout = getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second)
	cfg.Redis.WriteTimeout = getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second)
	cfg.Redis.PoolTimeout = getEnvDuration("REDIS_POOL_TIMEOUT", 4*time.Second)
	cfg.Redis.IdleTimeout = getEnvDuration("REDIS_IDLE_TIMEOUT", 5*time.Minute)
	cfg.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", "tradermind:")
	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", true)

	// ======================
	// BROKER
	// ======================
	cfg.Broker.Group = getEnv("BROKER_GROUP", "tradermind-workers")
	cfg.Broker.StreamPrefix = getEnv("BROKER_STREAM_PREFIX", "tradermind:stream:")
	cfg.Broker.BatchSize = getEnvInt64("BROKER_BATCH_SIZE", 10)
	cfg.Broker.Block = getEnvDuration("BROKER_BLOCK", 2*time.Second)
	cfg.Broker.ClaimMinIdle = getEnvDuration("BROKER_CLAIM_MIN_IDLE", 30*time.Second)
	cfg.Broker.MaxLen = getEnvInt64("BROKER_MAX_LEN", 10000)
	cfg.Broker.HealthInterval = getEnvDuration("BROKER_HEALTH_INTERVAL", 5*time.Second)
	cfg.Broker.DedupTTL = getEnvDuration("BROKER_DEDUP_TTL", 24*time.Hour)
	cfg.Broker.MaxDeliveries = getEnvInt64("BROKER_MAX_DELIVERIES", 10)

	// ======================
	// TRADING
	// ======================
	cfg.Engine.TuningPath = getEnv("ENGINE_CONFIG_PATH", "")

	cfg.Risk.MaxDailyLoss = getEnvFloat("RISK_MAX_DAILY_LOSS", 50)
	cfg.Risk.MaxConsecutiveLosses = getEnvInt("RISK_MAX_CONSECUTIVE_LOSSES", 3)
	cfg.Risk.MaxPerAsset = getEnvInt("RISK_MAX_PER_ASSET", 2)
	cfg.Risk.MaxGlobal = getEnvInt("RISK_MAX_GLOBAL", 5)

	cfg.Bot.WarmupTicks = getEnvInt("BOT_WARMUP_TICKS", 50)
	cfg.Bot.ErrorThreshold = getEnvInt("BOT_ERROR_THRESHOLD", 10)
	cfg.Bot.MaxHistory = getEnvInt("BOT_MAX_HISTORY", 1000)
	cfg.Bot.AutoStart = getEnvBool("BOT_AUTO_START", false)

	cfg.Workers.DBRetryDelay = getEnvDuration("WORKER_DB_RETRY_DELAY", time.Second)
	cfg.Workers.DBMaxRetries = getEnvInt("WORKER_DB_MAX_RETRIES", 3)
	cfg.Workers.DBRetryQueueSize = getEnvInt("WORKER_DB_RETRY_QUEUE_SIZE", 1000)
	cfg.Workers.DBRetryPollPeriod = getEnvDuration("WORKER_DB_RETRY_POLL", 200*time.Millisecond)

	cfg.Execution.Mode = getEnv("EXECUTION_MODE", "dry_run")
	cfg.Execution.RateLimit = getEnvFloat("EXECUTION_RATE_LIMIT", 5)
	cfg.Execution.RateBurst = getEnvInt("EXECUTION_RATE_BURST", 10)
	cfg.Execution.BaseStake = getEnvFloat("EXECUTION_BASE_STAKE", 1)
	cfg.Execution.PayoutRatio = getEnvFloat("EXECUTION_PAYOUT_RATIO", 0.2)
	cfg.Execution.ContractDuration = getEnvDuration("EXECUTION_CONTRACT_DURATION", 2*time.Second)
	cfg.Execution.DefaultBalance = getEnvFloat("EXECUTION_DEFAULT_BALANCE", 1000)

	cfg.Market.Source = getEnv("MARKET_SOURCE", "mock")
	cfg.Market.WebSocketURL = getEnv("MARKET_WS_URL", "wss://ws.derivws.com/websockets/v3?app_id=1089")
	cfg.Market.ReconnectDelay = getEnvDuration("MARKET_RECONNECT_DELAY", 3*time.Second)
	cfg.Market.MockInterval = getEnvDuration("MARKET_MOCK_INTERVAL", time.Second)

	// ======================
	// DELIVERY
	// ======================
	cfg.Push.FirebaseCredentials = getEnv("FIREBASE_CREDENTIALS_FILE", "")
	cfg.Push.WebSocketEnabled = getEnvBool("PUSH_WS_ENABLED", true)

	cfg.HTTP.Enabled = getEnvBool("HTTP_ENABLED", true)
	cfg.HTTP.Port = getEnvInt("HTTP_PORT", 8080)
	cfg.HTTP.Mode = getEnv("GIN_MODE", "release")

	cfg.Logging.Level = strings.ToUpper(getEnv("LOG_LEVEL", "INFO"))
	cfg.Logging.File = getEnv("LOG_FILE", "")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate collects every problem instead of stopping at the first one.
func (c *Config) Validate() error {
	var validationErrors []string

	if c.Database.Enabled {
		if c.Database.User == "" {
			validationErrors = append(validationErrors, "DB_USER is required when DB_ENABLED=true")
		}
		if c.Database.Name == "" {
			validationErrors = append(validationErrors, "DB_NAME is required when DB_ENABLED=true")
		}
	}
	if c.Broker.Group == "" {
		validationErrors = append(validationErrors, "BROKER_GROUP must not be empty")
	}
	if c.Broker.Block <= 0 {
		validationErrors = append(validationErrors, "BROKER_BLOCK must be positive")
	}
	if c.Broker.BatchSize <= 0 {
		validationErrors = append(validationErrors, "BROKER_BATCH_SIZE must be positive")
	}
	if c.Risk.MaxDailyLoss <= 0 {
		validationErrors = append(validationErrors, "RISK_MAX_DAILY_LOSS must be positive")
	}
	if c.Risk.MaxConsecutiveLosses <= 0 {
		validationErrors = append(validationErrors, "RISK_MAX_CONSECUTIVE_LOSSES must be positive")
	}
	if c.Risk.MaxPerAsset <= 0 || c.Risk.MaxGlobal <= 0 {
		validationErrors = append(validationErrors, "RISK_MAX_PER_ASSET and RISK_MAX_GLOBAL must be positive")
	}
	if c.Bot.ErrorThreshold <= 0 {
		validationErrors = append(validationErrors, "BOT_ERROR_THRESHOLD must be positive")
	}
	if c.Workers.DBMaxRetries < 0 {
		validationErrors = append(validationErrors, "WORKER_DB_MAX_RETRIES must not be negative")
	}
	if c.Execution.Mode != "dry_run" {
		validationErrors = append(validationErrors, fmt.Sprintf("EXECUTION_MODE %q is not supported", c.Execution.Mode))
	}
	if c.Execution.BaseStake <= 0 {
		validationErrors = append(validationErrors, "EXECUTION_BASE_STAKE must be positive")
	}
	switch c.Market.Source {
	case "websocket", "mock":
	default:
		validationErrors = append(validationErrors, fmt.Sprintf("MARKET_SOURCE %q must be websocket or mock", c.Market.Source))
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, "; "))
	}
	return nil
}

func (c *Config) GetPostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) IsDev() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

func (c *Config) PrintSummary() {
	log.Printf("📋 Configuration:")
	log.Printf("   • Environment: %s (v%s)", c.Environment, c.Version)
	log.Printf("   • Log level: %s", c.Logging.Level)
	if c.Database.Enabled {
		log.Printf("   • PostgreSQL: %s:%d/%s", c.Database.Host, c.Database.Port, c.Database.Name)
	} else {
		log.Printf("   • PostgreSQL: disabled (in-memory stores)")
	}
	log.Printf("   • Redis: %s (DB: %d, Pool: %d, enabled: %v)",
		c.GetRedisAddress(), c.Redis.DB, c.Redis.PoolSize, c.Redis.Enabled)
	log.Printf("   • Broker: group=%s block=%v claimIdle=%v batch=%d",
		c.Broker.Group, c.Broker.Block, c.Broker.ClaimMinIdle, c.Broker.BatchSize)
	log.Printf("   • Risk: dailyLoss=%.2f consecutive=%d perAsset=%d global=%d",
		c.Risk.MaxDailyLoss, c.Risk.MaxConsecutiveLosses, c.Risk.MaxPerAsset, c.Risk.MaxGlobal)
	log.Printf("   • Bot: warmup=%d errorThreshold=%d", c.Bot.WarmupTicks, c.Bot.ErrorThreshold)
	log.Printf("   • Execution: %s (%.1f/s, stake %.2f)", c.Execution.Mode, c.Execution.RateLimit, c.Execution.BaseStake)
	log.Printf("   • Market: %s", c.Market.Source)
	log.Printf("   • HTTP: %v (port %d)", c.HTTP.Enabled, c.HTTP.Port)
	log.Printf("   • FCM push: %v", c.Push.FirebaseCredentials != "")
}
