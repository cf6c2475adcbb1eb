// application/services/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/adapters/market"
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/risk"
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/session"
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals"
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals/engine"
	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/transport/broker"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

var (
	ErrAlreadyRunning  = errors.New("bot already running")
	ErrNotRunning      = errors.New("bot not running")
	ErrEmergencyLatch  = errors.New("emergency stop latched")
	ErrNoActiveSession = errors.New("no active session to bind")
)

// Stop reasons reported in Status and bot.status events.
const (
	ReasonManual         = "manual"
	ReasonErrorThreshold = "error_threshold"
	ReasonDisconnected   = "tick_stream_disconnected"
	ReasonShutdown       = "shutdown"
)

// GroupBotEngine is the consumer group of the trade.closed feedback loop.
const GroupBotEngine = "bot-engine"

// SessionSource resolves the session the bot trades for.
type SessionSource interface {
	GetActiveSession(ctx context.Context) (*session.Session, error)
}

// Analyzer is the signal engine surface the bot drives.
type Analyzer interface {
	Analyze(in signals.Input) (signals.Analysis, error)
	Revalidate(in signals.Input, pending signals.Signal) (engine.Revalidation, error)
	RecordTradeResult(market string, win bool)
}

// TickHistory keeps the rolling per-market history.
type TickHistory interface {
	StoreTick(tick signals.Tick) error
	Input(symbol string, limit int) (signals.Input, error)
	Count(symbol string) int
}

// Broker is the part of the message broker the bot uses.
type Broker interface {
	Publish(ctx context.Context, topic events.Topic, env events.Envelope) (string, error)
	Subscribe(topic events.Topic, handler broker.Handler, opts ...broker.SubscribeOption) error
	Unsubscribe(topic events.Topic, opts ...broker.SubscribeOption) error
}

type Config struct {
	WarmupTicks    int
	ErrorThreshold int
	MaxHistory     int
}

var DefaultConfig = Config{
	WarmupTicks:    50,
	ErrorThreshold: 10,
	MaxHistory:     1000,
}

// Dependencies groups the collaborators of the bot engine.
type Dependencies struct {
	Sessions SessionSource
	Source   market.TickSource
	History  TickHistory
	Analyzer Analyzer
	Gate     *risk.Gate
	Ledger   *risk.Ledger
	Broker   Broker
}

// BotEngine drives the per-tick pipeline of the active session: history,
// signal engine, smart-delay revalidation, risk gate and signal publication.
// It implements market.Listener.
type BotEngine struct {
	cfg      Config
	sessions SessionSource
	source   market.TickSource
	history  TickHistory
	analyzer Analyzer
	gate     *risk.Gate
	ledger   *risk.Ledger
	broker   Broker

	mu         sync.Mutex
	state      State
	emergency  bool
	autoPaused bool
	sessionID  string
	markets    []string
	reason     string
	errorCount int
	lastError  string
	startedAt  time.Time
	ctx        context.Context
	pending    map[string]signals.Signal
	counters   counters
	subscribed bool
	observers  []StatusObserver
	now        func() time.Time
	stopSource func(market.TickSource)
}

type counters struct {
	Ticks     int64
	Analyses  int64
	Pending   int64
	Discarded int64
	Rejected  int64
	Signals   int64
	Closed    int64
}

func New(cfg Config, deps Dependencies) *BotEngine {
	if cfg.WarmupTicks <= 0 {
		cfg.WarmupTicks = DefaultConfig.WarmupTicks
	}
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = DefaultConfig.ErrorThreshold
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultConfig.MaxHistory
	}
	return &BotEngine{
		cfg:        cfg,
		sessions:   deps.Sessions,
		source:     deps.Source,
		history:    deps.History,
		analyzer:   deps.Analyzer,
		gate:       deps.Gate,
		ledger:     deps.Ledger,
		broker:     deps.Broker,
		state:      StateStopped,
		pending:    make(map[string]signals.Signal),
		now:        time.Now,
		stopSource: func(s market.TickSource) { s.Stop() },
	}
}

// AddObserver registers o for every status change.
func (b *BotEngine) AddObserver(o StatusObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

func (b *BotEngine) Name() string { return "BotEngine" }

func (b *BotEngine) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateRunning
}

func (b *BotEngine) HealthCheck() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.emergency && b.errorCount < b.cfg.ErrorThreshold
}
