// internal/core/domain/signals/detectors/boundary.go
package detectors

import (
	"fmt"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

// boundaryPressure compares the weight of the two edge bands (0-1 and 8-9).
type boundaryPressure struct {
	window int
	margin float64
}

func (boundaryPressure) Name() string { return NameBoundaryPressure }

func (s boundaryPressure) Evaluate(digits []int) signals.Vote {
	w := tail(digits, s.window)
	vote := signals.Vote{Strategy: s.Name()}
	if len(w) == 0 {
		vote.Reason = "no history"
		return vote
	}

	c := counts(w)
	n := float64(len(w))
	low := float64(c[0]+c[1]) / n
	high := float64(c[8]+c[9]) / n
	diff := high - low

	switch {
	case diff >= s.margin:
		vote.Side = events.DirectionOver
	case -diff >= s.margin:
		vote.Side = events.DirectionUnder
	default:
		vote.Reason = fmt.Sprintf("edges balanced (%.2f vs %.2f)", low, high)
		return vote
	}
	if diff < 0 {
		diff = -diff
	}
	vote.Confidence = clamp01(diff * 5)
	vote.Reason = fmt.Sprintf("low edge %.0f%%, high edge %.0f%%", low*100, high*100)
	return vote
}
