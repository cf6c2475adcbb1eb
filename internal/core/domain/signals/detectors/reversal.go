// internal/core/domain/signals/detectors/reversal.go
package detectors

import (
	"fmt"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

// leastFrequent bets against the rarest edge digit showing up.
type leastFrequent struct{ window int }

func (leastFrequent) Name() string { return NameLeastFrequent }

func (s leastFrequent) Evaluate(digits []int) signals.Vote {
	w := tail(digits, s.window)
	vote := signals.Vote{Strategy: s.Name()}
	if len(w) == 0 {
		vote.Reason = "no history"
		return vote
	}

	c := counts(w)
	rare := 0
	for d := 1; d < 10; d++ {
		if c[d] < c[rare] {
			rare = d
		}
	}
	p := float64(c[rare]) / float64(len(w))
	vote.Confidence = clamp01((0.1 - p) / 0.1)

	switch {
	case rare <= 1:
		vote.Side = events.DirectionOver
	case rare >= 8:
		vote.Side = events.DirectionUnder
	default:
		vote.Confidence = 0
		vote.Reason = fmt.Sprintf("least frequent digit %d is not at an edge", rare)
		return vote
	}
	vote.Reason = fmt.Sprintf("digit %d at %.0f%%", rare, p*100)
	return vote
}

// exhaustion expects a long same-side streak to end.
type exhaustion struct{ minStreak int }

func (exhaustion) Name() string { return NameExhaustion }

func (s exhaustion) Evaluate(digits []int) signals.Vote {
	vote := signals.Vote{Strategy: s.Name()}
	if len(digits) == 0 {
		vote.Reason = "no history"
		return vote
	}

	side := sideOf(digits[len(digits)-1])
	streak := 0
	for i := len(digits) - 1; i >= 0 && sideOf(digits[i]) == side; i-- {
		streak++
	}
	if streak < s.minStreak {
		vote.Reason = fmt.Sprintf("streak %d below %d", streak, s.minStreak)
		return vote
	}

	vote.Side = opposite(side)
	vote.Confidence = clamp01(float64(streak) / float64(2*s.minStreak))
	vote.Reason = fmt.Sprintf("%s streak of %d", side, streak)
	return vote
}

// counterTrend sides with the long window when the short window disagrees.
type counterTrend struct{ long, short int }

func (counterTrend) Name() string { return NameCounterTrend }

func (s counterTrend) Evaluate(digits []int) signals.Vote {
	vote := signals.Vote{Strategy: s.Name()}
	longSide, longShare := majority(tail(digits, s.long))
	shortSide, _ := majority(tail(digits, s.short))

	if longSide == "" || shortSide == "" || longSide == shortSide {
		vote.Reason = "short and long windows agree"
		return vote
	}
	vote.Side = longSide
	vote.Confidence = longShare
	vote.Reason = fmt.Sprintf("short %s against long %s", shortSide, longSide)
	return vote
}
