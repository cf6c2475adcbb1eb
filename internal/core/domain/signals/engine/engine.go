// internal/core/domain/signals/engine/engine.go
package engine

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

var ErrNotExtended = errors.New("history not extended since detection")

// Engine wraps Score with per-market memory of past cycles and trade outcomes.
type Engine struct {
	config Config

	mu      sync.Mutex
	markets map[string]*MarketState
	stats   Stats
}

type Stats struct {
	Analyses        int64     `json:"analyses"`
	Insufficient    int64     `json:"insufficient"`
	Recommendations int64     `json:"recommendations"`
	Revalidations   int64     `json:"revalidations"`
	Discarded       int64     `json:"discarded"`
	LastAnalysis    time.Time `json:"last_analysis"`
}

// Revalidation is the smart-delay verdict on a pending signal.
type Revalidation struct {
	Confirmed bool
	Reason    string
	Analysis  signals.Analysis
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	return &Engine{
		config:  cfg,
		markets: make(map[string]*MarketState),
	}, nil
}

func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) snapshot(market string) MarketState {
	if st, ok := e.markets[market]; ok {
		return st.clone()
	}
	return MarketState{}
}

// Analyze scores the input and remembers the cycle direction for the market.
func (e *Engine) Analyze(in signals.Input) (signals.Analysis, error) {
	e.mu.Lock()
	st := e.snapshot(in.Market)
	e.mu.Unlock()

	a, err := Score(e.config, in, st)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.Analyses++
	e.stats.LastAnalysis = time.Now()
	if err != nil {
		e.stats.Insufficient++
		return a, err
	}

	state, ok := e.markets[in.Market]
	if !ok {
		state = &MarketState{}
		e.markets[in.Market] = state
	}
	state.Cycles = appendBounded(state.Cycles, a.Side, e.config.ConsistencyCycles)
	if a.Recommended {
		e.stats.Recommendations++
	}

	logger.Debug("🧭 %s: side=%q conf=%.3f votes=[%s]", in.Market, a.Side, a.Confidence, formatVotes(a.Votes))
	return a, nil
}

// Revalidate re-runs direction and gates for a pending signal on a history
// that has grown by at least one tick since detection.
func (e *Engine) Revalidate(in signals.Input, pending signals.Signal) (Revalidation, error) {
	if n := len(in.Times); n == 0 || !in.Times[n-1].After(pending.DetectedAt) {
		return Revalidation{}, ErrNotExtended
	}

	e.mu.Lock()
	st := e.snapshot(in.Market)
	e.mu.Unlock()

	a, err := Score(e.config, in, st)
	if err != nil {
		return Revalidation{Analysis: a, Reason: a.Reason}, err
	}

	r := Revalidation{Analysis: a}
	switch {
	case a.Side != pending.Side:
		r.Reason = fmt.Sprintf("direction changed %s -> %q", pending.Side, a.Side)
	case !a.Validation.Passed:
		r.Reason = "validation failed: " + strings.Join(a.Validation.Failures, ", ")
	default:
		r.Confirmed = true
		r.Reason = "confirmed"
	}

	e.mu.Lock()
	e.stats.Revalidations++
	if !r.Confirmed {
		e.stats.Discarded++
	}
	e.mu.Unlock()
	return r, nil
}

// RecordTradeResult feeds the win ratio of market.
func (e *Engine) RecordTradeResult(market string, win bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.markets[market]
	if !ok {
		state = &MarketState{}
		e.markets[market] = state
	}
	state.Wins = appendBounded(state.Wins, win, e.config.WinHistory)
}

func (e *Engine) State(market string) MarketState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(market)
}

func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.markets = make(map[string]*MarketState)
}

func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = append(s[:0:0], s[len(s)-limit:]...)
	}
	return s
}

func formatVotes(votes []signals.Vote) string {
	parts := make([]string, 0, len(votes))
	for _, v := range votes {
		if v.Side == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%s@%.2f", v.Strategy, v.Side, v.Confidence))
	}
	return strings.Join(parts, " ")
}
