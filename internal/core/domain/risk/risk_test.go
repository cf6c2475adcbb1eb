package risk

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimits() Limits {
	return Limits{
		MaxDailyLoss:         decimal.NewFromInt(50),
		MaxConsecutiveLosses: 3,
		MaxPerAsset:          2,
		MaxGlobal:            3,
	}
}

func TestDailyLossBoundaryIsInclusive(t *testing.T) {
	g := NewGate(testLimits(), nil)

	d := g.Evaluate(TradeContext{DailyLoss: decimal.NewFromInt(50), Asset: "R_100"})
	assert.False(t, d.Allowed)
	assert.Equal(t, []Reason{ReasonDailyLoss}, d.Reasons)

	d = g.Evaluate(TradeContext{DailyLoss: decimal.NewFromInt(49), Asset: "R_100"})
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reasons)
}

func TestAllTriggeredReasonsReturned(t *testing.T) {
	cm := NewCorrelationManager()
	cm.RegisterN("R_100", 2)
	cm.Register("R_50")
	g := NewGate(testLimits(), cm)

	d := g.Evaluate(TradeContext{DailyLoss: decimal.NewFromInt(80), ConsecutiveLosses: 3, Asset: "R_100"})
	assert.False(t, d.Allowed)
	assert.ElementsMatch(t, []Reason{ReasonDailyLoss, ReasonConsecutiveLosses, ReasonAssetExposure, ReasonGlobalExposure}, d.Reasons)
	assert.Contains(t, d.String(), "consecutive_losses")
}

func TestAdmitRegistersUntilCaps(t *testing.T) {
	g := NewGate(testLimits(), nil)
	tc := TradeContext{Asset: "R_100"}

	assert.True(t, g.Admit(tc).Allowed)
	assert.True(t, g.Admit(tc).Allowed)

	d := g.Admit(tc)
	assert.False(t, d.Allowed)
	assert.Equal(t, []Reason{ReasonAssetExposure}, d.Reasons)
	assert.Equal(t, 2, g.Correlation().Open("R_100"))

	assert.True(t, g.Admit(TradeContext{Asset: "R_75"}).Allowed)
	d = g.Admit(TradeContext{Asset: "R_25"})
	assert.Equal(t, []Reason{ReasonGlobalExposure}, d.Reasons)
	assert.Equal(t, 3, g.Correlation().Global())
}

func TestAdmitIsAtomicUnderContention(t *testing.T) {
	limits := testLimits()
	limits.MaxPerAsset = 10
	limits.MaxGlobal = 10
	g := NewGate(limits, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Admit(TradeContext{Asset: "R_100"}).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
	assert.Equal(t, 10, g.Correlation().Global())
}

func TestDeregisterNeverBelowZero(t *testing.T) {
	cm := NewCorrelationManager()
	cm.Register("R_100")
	cm.Deregister("R_100")
	cm.Deregister("R_100")
	cm.DeregisterN("R_50", 3)

	assert.Equal(t, 0, cm.Open("R_100"))
	assert.Equal(t, 0, cm.Global())
	assert.Empty(t, cm.Snapshot().PerAsset)
}

func TestAdjust(t *testing.T) {
	cm := NewCorrelationManager()
	cm.Register("R_100")

	cm.Adjust("R_100", 1, 3)
	assert.Equal(t, 3, cm.Open("R_100"))

	cm.Adjust("R_100", 3, 0)
	assert.Equal(t, 0, cm.Open("R_100"))
	assert.Equal(t, 0, cm.Global())
}

func TestLedgerStreakAndDailyReset(t *testing.T) {
	now := time.Date(2024, 5, 10, 23, 0, 0, 0, time.UTC)
	l := NewLedger()
	l.SetClock(func() time.Time { return now })

	l.Record(decimal.NewFromInt(-10))
	l.Record(decimal.NewFromInt(-15))
	l.Record(decimal.NewFromInt(5))
	l.Record(decimal.NewFromInt(-20))

	tc := l.Context("R_100")
	assert.True(t, tc.DailyLoss.Equal(decimal.NewFromInt(40)), tc.DailyLoss.String())
	assert.Equal(t, 1, tc.ConsecutiveLosses)

	now = now.Add(2 * time.Hour)
	snap := l.Snapshot()
	assert.True(t, snap.DailyLoss.IsZero())
	assert.Equal(t, 0, snap.Trades)
	assert.Equal(t, 0, snap.ConsecutiveLosses)

	l.Record(decimal.NewFromInt(-3))
	l.Record(decimal.NewFromInt(12))
	assert.True(t, l.DailyLoss().IsZero())
	require.Equal(t, 0, l.Context("R_100").ConsecutiveLosses)
}

func TestStreakBlockLiftsAtDayRollover(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	l := NewLedger()
	l.SetClock(func() time.Time { return now })
	g := NewGate(testLimits(), nil)

	for i := 0; i < 3; i++ {
		l.Record(decimal.NewFromInt(-1))
	}
	d := g.Evaluate(l.Context("R_100"))
	require.False(t, d.Allowed)
	assert.Equal(t, []Reason{ReasonConsecutiveLosses}, d.Reasons)

	now = now.Add(72 * time.Hour)
	d = g.Evaluate(l.Context("R_100"))
	assert.True(t, d.Allowed, d.String())
	assert.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), l.Snapshot().Day)
}

func TestStreakMovesOncePerSignal(t *testing.T) {
	l := NewLedger()

	// three participants close the same losing signal
	for i := 0; i < 3; i++ {
		l.RecordSignal("corr-1", decimal.NewFromInt(-2))
	}
	snap := l.Snapshot()
	assert.Equal(t, 1, snap.ConsecutiveLosses)
	assert.Equal(t, 3, snap.Trades)
	assert.True(t, snap.DailyLoss.Equal(decimal.NewFromInt(6)), snap.DailyLoss.String())

	l.RecordSignal("corr-2", decimal.NewFromInt(-2))
	l.RecordSignal("corr-2", decimal.NewFromInt(-2))
	assert.Equal(t, 2, l.Snapshot().ConsecutiveLosses)

	l.RecordSignal("corr-3", decimal.NewFromInt(4))
	l.RecordSignal("corr-3", decimal.NewFromInt(4))
	assert.Equal(t, 0, l.Snapshot().ConsecutiveLosses)
}

func TestLedgerReset(t *testing.T) {
	l := NewLedger()
	for i := 0; i < 4; i++ {
		l.Record(decimal.NewFromInt(-5))
	}
	l.Reset()

	snap := l.Snapshot()
	assert.Equal(t, 0, snap.ConsecutiveLosses)
	assert.Equal(t, 0, snap.Trades)
	assert.True(t, snap.NetPnL.IsZero())

	// booked signals are forgotten too
	l.RecordSignal("corr-1", decimal.NewFromInt(-1))
	l.Reset()
	l.RecordSignal("corr-1", decimal.NewFromInt(-1))
	assert.Equal(t, 1, l.Snapshot().ConsecutiveLosses)
}
