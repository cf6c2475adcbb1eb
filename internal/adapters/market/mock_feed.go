// internal/adapters/market/mock_feed.go
package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// MockFeed emits a random walk per symbol at a fixed interval. It is the
// default source for local runs and dry-run execution.
type MockFeed struct {
	interval time.Duration
	pipSize  int

	mu      sync.Mutex
	rng     *rand.Rand
	prices  map[string]float64
	running bool
	stop    chan struct{}
	done    chan struct{}
	now     func() time.Time

	ticks atomic.Int64
}

func NewMockFeed(interval time.Duration, seed int64) *MockFeed {
	if interval <= 0 {
		interval = time.Second
	}
	return &MockFeed{
		interval: interval,
		pipSize:  2,
		rng:      rand.New(rand.NewSource(seed)),
		prices:   make(map[string]float64),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (f *MockFeed) Name() string { return "mock" }

func (f *MockFeed) Start(ctx context.Context, symbols []string, listener Listener) error {
	if len(symbols) == 0 {
		return ErrNoSymbols
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return ErrAlreadyRunning
	}
	for _, s := range symbols {
		if _, ok := f.prices[s]; !ok {
			f.prices[s] = 1000 + f.rng.Float64()*100
		}
	}
	f.running = true
	f.stop = make(chan struct{})
	f.done = make(chan struct{})

	go f.loop(ctx, append([]string(nil), symbols...), listener)
	logger.Info("🎲 Mock tick feed started (%d symbols, every %v)", len(symbols), f.interval)
	return nil
}

func (f *MockFeed) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	close(f.stop)
	done := f.done
	f.mu.Unlock()

	<-done
	return nil
}

func (f *MockFeed) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *MockFeed) GetStats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Ticks:      f.ticks.Load(),
		Connected:  f.running,
		Subscribed: len(f.prices),
		SourceName: f.Name(),
	}
}

func (f *MockFeed) loop(ctx context.Context, symbols []string, listener Listener) {
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.mu.Lock()
			f.running = false
			f.mu.Unlock()
			return
		case <-f.stop:
			return
		case <-ticker.C:
			for _, s := range symbols {
				listener.OnTick(f.Next(s))
			}
		}
	}
}

// Next advances symbol by one step and returns the tick.
func (f *MockFeed) Next(symbol string) signals.Tick {
	f.mu.Lock()
	price, ok := f.prices[symbol]
	if !ok {
		price = 1000
	}
	price += (f.rng.Float64() - 0.5) * 2
	scale := math.Pow10(f.pipSize)
	price = math.Round(price*scale) / scale
	f.prices[symbol] = price
	f.mu.Unlock()

	f.ticks.Add(1)
	return signals.Tick{
		Symbol:  symbol,
		Quote:   price,
		PipSize: f.pipSize,
		Epoch:   f.now(),
		Digit:   signals.DigitFromQuote(price, f.pipSize),
	}
}
