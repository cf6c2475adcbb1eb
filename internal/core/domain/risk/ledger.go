// internal/core/domain/risk/ledger.go
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// maxBookedSignals bounds the set of signals already counted in the streak.
const maxBookedSignals = 1024

// Ledger tracks realised PnL and the losing streak for the current UTC day.
// The streak moves once per signal, however many participants traded it.
type Ledger struct {
	mu          sync.Mutex
	day         time.Time
	netPnL      decimal.Decimal
	consecutive int
	trades      int
	booked      map[string]struct{}
	bookedOrder []string
	now         func() time.Time
}

type LedgerSnapshot struct {
	Day               time.Time       `json:"day"`
	NetPnL            decimal.Decimal `json:"net_pnl"`
	DailyLoss         decimal.Decimal `json:"daily_loss"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	Trades            int             `json:"trades"`
}

func NewLedger() *Ledger {
	l := &Ledger{now: time.Now, booked: make(map[string]struct{})}
	l.day = utcDay(l.now())
	return l
}

func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	l.day = utcDay(now())
}

func utcDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

func (l *Ledger) rolloverLocked() {
	if today := utcDay(l.now()); today.After(l.day) {
		l.clearLocked(today)
	}
}

func (l *Ledger) clearLocked(day time.Time) {
	l.day = day
	l.netPnL = decimal.Zero
	l.consecutive = 0
	l.trades = 0
	l.booked = make(map[string]struct{})
	l.bookedOrder = l.bookedOrder[:0]
}

// Record books a closed trade that belongs to no known signal. Every call
// moves the streak.
func (l *Ledger) Record(pnl decimal.Decimal) {
	l.RecordSignal("", pnl)
}

// RecordSignal books a participant's closed trade. Its PnL always counts;
// the streak moves only on the first closure of signalID, so one losing
// signal fanned out to N participants is one loss.
func (l *Ledger) RecordSignal(signalID string, pnl decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rolloverLocked()
	l.netPnL = l.netPnL.Add(pnl)
	l.trades++

	if signalID != "" {
		if _, ok := l.booked[signalID]; ok {
			return
		}
		l.bookLocked(signalID)
	}
	switch {
	case pnl.IsNegative():
		l.consecutive++
	case pnl.IsPositive():
		l.consecutive = 0
	}
}

func (l *Ledger) bookLocked(signalID string) {
	if len(l.bookedOrder) >= maxBookedSignals {
		delete(l.booked, l.bookedOrder[0])
		l.bookedOrder = l.bookedOrder[1:]
	}
	l.booked[signalID] = struct{}{}
	l.bookedOrder = append(l.bookedOrder, signalID)
}

// DailyLoss is the net realised loss of the day, zero when in profit.
func (l *Ledger) DailyLoss() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	return dailyLoss(l.netPnL)
}

func dailyLoss(net decimal.Decimal) decimal.Decimal {
	if net.IsNegative() {
		return net.Neg()
	}
	return decimal.Zero
}

func (l *Ledger) Context(asset string) TradeContext {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	return TradeContext{
		DailyLoss:         dailyLoss(l.netPnL),
		ConsecutiveLosses: l.consecutive,
		Asset:             asset,
	}
}

func (l *Ledger) Snapshot() LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	return LedgerSnapshot{
		Day:               l.day,
		NetPnL:            l.netPnL,
		DailyLoss:         dailyLoss(l.netPnL),
		ConsecutiveLosses: l.consecutive,
		Trades:            l.trades,
	}
}

// Reset clears the day and the streak. The bot calls it when an emergency
// latch is cleared.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearLocked(utcDay(l.now()))
}
