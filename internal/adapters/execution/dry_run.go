// internal/adapters/execution/dry_run.go
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// QuoteSource provides the latest tick of a market.
type QuoteSource interface {
	GetLatest(symbol string) (signals.Tick, bool)
}

type DryRunConfig struct {
	PayoutRatio      decimal.Decimal
	ContractDuration time.Duration
	DefaultBalance   decimal.Decimal
}

// DryRun simulates digit contracts against live quotes. A contract settles
// after ContractDuration against the latest digit of its market: OVER wins
// when the digit is above the contract digit, UNDER when it is below.
type DryRun struct {
	cfg    DryRunConfig
	quotes QuoteSource
	now    func() time.Time

	mu       sync.Mutex
	balances map[string]decimal.Decimal
	open     map[string]*openContract
	stopped  bool
	stopCh   chan struct{}
	closed   chan Closure

	stats DryRunStats
}

type openContract struct {
	position Position
	timer    *time.Timer
}

type DryRunStats struct {
	Submitted int `json:"submitted"`
	Rejected  int `json:"rejected"`
	Settled   int `json:"settled"`
	Won       int `json:"won"`
	Open      int `json:"open"`
}

var _ Backend = (*DryRun)(nil)

func NewDryRun(cfg DryRunConfig, quotes QuoteSource) *DryRun {
	if cfg.ContractDuration <= 0 {
		cfg.ContractDuration = 2 * time.Second
	}
	if !cfg.PayoutRatio.IsPositive() {
		cfg.PayoutRatio = decimal.RequireFromString("0.2")
	}
	return &DryRun{
		cfg:      cfg,
		quotes:   quotes,
		now:      func() time.Time { return time.Now().UTC() },
		balances: make(map[string]decimal.Decimal),
		open:     make(map[string]*openContract),
		stopCh:   make(chan struct{}),
		closed:   make(chan Closure, 256),
	}
}

func (d *DryRun) Name() string { return "dry_run" }

func (d *DryRun) Closed() <-chan Closure { return d.closed }

// Balance implements session.BalanceProvider. Unknown users start at DefaultBalance.
func (d *DryRun) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.balanceLocked(userID), nil
}

// SetBalance overrides a user's balance.
func (d *DryRun) SetBalance(userID string, balance decimal.Decimal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.balances[userID] = balance
}

func (d *DryRun) balanceLocked(userID string) decimal.Decimal {
	b, ok := d.balances[userID]
	if !ok {
		b = d.cfg.DefaultBalance
		d.balances[userID] = b
	}
	return b
}

func (d *DryRun) Submit(ctx context.Context, order Order) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	if !order.Stake.IsPositive() {
		return Position{}, ErrInvalidStake
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return Position{}, ErrBackendStopped
	}
	balance := d.balanceLocked(order.UserID)
	if balance.LessThan(order.Stake) {
		d.stats.Rejected++
		return Position{}, fmt.Errorf("%w: %s < %s", ErrInsufficientBalance, balance, order.Stake)
	}
	d.balances[order.UserID] = balance.Sub(order.Stake)

	entry := decimal.Zero
	if tick, ok := d.quotes.GetLatest(order.Symbol); ok {
		entry = decimal.NewFromFloat(tick.Quote)
	}
	pos := Position{
		ContractID: uuid.NewString(),
		Order:      order,
		EntryPrice: entry,
		StartTime:  d.now(),
	}
	contractID := pos.ContractID
	d.open[contractID] = &openContract{
		position: pos,
		timer: time.AfterFunc(d.cfg.ContractDuration, func() {
			d.Settle(contractID, events.CloseExpired)
		}),
	}
	d.stats.Submitted++

	logger.Debug("🧪 Dry-run %s %s digit %d stake %s for %s (%s)",
		order.Symbol, order.Direction, order.Digit, order.Stake, order.UserID, contractID)
	return pos, nil
}

// Settle closes contractID against the latest quote. It reports false when the
// contract is not open.
func (d *DryRun) Settle(contractID string, reason events.CloseReason) bool {
	d.mu.Lock()
	oc, ok := d.open[contractID]
	if !ok || d.stopped {
		d.mu.Unlock()
		return false
	}
	delete(d.open, contractID)
	oc.timer.Stop()

	pos := oc.position
	won := d.wins(pos.Order)
	pnl := pos.Order.Stake.Neg()
	if won {
		pnl = pos.Order.Stake.Mul(d.cfg.PayoutRatio).Round(2)
		d.balances[pos.Order.UserID] = d.balanceLocked(pos.Order.UserID).Add(pos.Order.Stake).Add(pnl)
		d.stats.Won++
	}
	d.stats.Settled++
	closure := Closure{Position: pos, ProfitLoss: pnl, Reason: reason, ClosedAt: d.now()}
	d.mu.Unlock()

	select {
	case d.closed <- closure:
	case <-d.stopCh:
		return false
	}
	return true
}

func (d *DryRun) wins(o Order) bool {
	tick, ok := d.quotes.GetLatest(o.Symbol)
	if !ok {
		return false
	}
	switch o.Direction {
	case events.DirectionOver:
		return tick.Digit > o.Digit
	case events.DirectionUnder:
		return tick.Digit < o.Digit
	}
	return false
}

// CloseAll settles every open contract with MANUAL.
func (d *DryRun) CloseAll() int {
	d.mu.Lock()
	ids := make([]string, 0, len(d.open))
	for id := range d.open {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	n := 0
	for _, id := range ids {
		if d.Settle(id, events.CloseManual) {
			n++
		}
	}
	return n
}

// Stop cancels pending settlements. Open contracts are abandoned.
func (d *DryRun) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	close(d.stopCh)
	for _, oc := range d.open {
		oc.timer.Stop()
	}
	if len(d.open) > 0 {
		logger.Warn("⚠️ Dry-run backend stopped with %d open contracts", len(d.open))
	}
}

func (d *DryRun) GetStats() DryRunStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Open = len(d.open)
	return s
}
