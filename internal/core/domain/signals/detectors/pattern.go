// internal/core/domain/signals/detectors/pattern.go
package detectors

import (
	"fmt"
	"math"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

// compression looks for recent digits clustering in a narrow band.
type compression struct {
	window    int
	maxStdDev float64
}

func (compression) Name() string { return NameCompression }

func (s compression) Evaluate(digits []int) signals.Vote {
	w := tail(digits, s.window)
	vote := signals.Vote{Strategy: s.Name()}
	if len(w) < 2 {
		vote.Reason = "no history"
		return vote
	}

	var sum float64
	for _, d := range w {
		sum += float64(d)
	}
	mean := sum / float64(len(w))
	var sq float64
	for _, d := range w {
		sq += (float64(d) - mean) * (float64(d) - mean)
	}
	std := math.Sqrt(sq / float64(len(w)))

	if std >= s.maxStdDev {
		vote.Reason = fmt.Sprintf("spread %.2f", std)
		return vote
	}
	if mean >= 5 {
		vote.Side = events.DirectionOver
	} else {
		vote.Side = events.DirectionUnder
	}
	vote.Confidence = clamp01(1 - std/s.maxStdDev)
	vote.Reason = fmt.Sprintf("cluster around %.1f", mean)
	return vote
}

// twoPhase requires both halves of the window to lean the same way, with
// the recent half at least as strong.
type twoPhase struct{ window int }

func (twoPhase) Name() string { return NameTwoPhase }

func (s twoPhase) Evaluate(digits []int) signals.Vote {
	w := tail(digits, s.window)
	vote := signals.Vote{Strategy: s.Name()}
	if len(w) < 2 {
		vote.Reason = "no history"
		return vote
	}

	half := len(w) / 2
	first, firstShare := majority(w[:half])
	second, secondShare := majority(w[half:])
	if first == "" || first != second {
		vote.Reason = "phases disagree"
		return vote
	}
	if secondShare < firstShare {
		vote.Reason = "confirmation weaker than setup"
		return vote
	}
	vote.Side = second
	vote.Confidence = (firstShare + secondShare) / 2
	vote.Reason = fmt.Sprintf("%s confirmed %.0f%% -> %.0f%%", second, firstShare*100, secondShare*100)
	return vote
}

// transition predicts the next side from side-to-side transition frequencies.
type transition struct{ window int }

func (transition) Name() string { return NameTransition }

func (s transition) Evaluate(digits []int) signals.Vote {
	w := tail(digits, s.window)
	vote := signals.Vote{Strategy: s.Name()}
	if len(w) < 3 {
		vote.Reason = "no history"
		return vote
	}

	last := sideOf(w[len(w)-1])
	var same, total int
	for i := 1; i < len(w); i++ {
		if sideOf(w[i-1]) != last {
			continue
		}
		total++
		if sideOf(w[i]) == last {
			same++
		}
	}
	if total == 0 {
		vote.Reason = "no transitions from " + string(last)
		return vote
	}

	pSame := float64(same) / float64(total)
	switch {
	case pSame > 0.5:
		vote.Side = last
		vote.Confidence = pSame
	case pSame < 0.5:
		vote.Side = opposite(last)
		vote.Confidence = 1 - pSame
	default:
		vote.Reason = "transitions balanced"
		return vote
	}
	vote.Reason = fmt.Sprintf("%s repeats %.0f%% of the time", last, pSame*100)
	return vote
}

// repeatSuppression expects a digit repeated at the tail to be suppressed next.
type repeatSuppression struct{ minRepeats int }

func (repeatSuppression) Name() string { return NameRepeatSuppression }

func (s repeatSuppression) Evaluate(digits []int) signals.Vote {
	vote := signals.Vote{Strategy: s.Name()}
	if len(digits) == 0 {
		vote.Reason = "no history"
		return vote
	}

	last := digits[len(digits)-1]
	repeats := 0
	for i := len(digits) - 1; i >= 0 && digits[i] == last; i-- {
		repeats++
	}
	if repeats < s.minRepeats {
		vote.Reason = fmt.Sprintf("digit %d seen %d times in a row", last, repeats)
		return vote
	}
	vote.Side = opposite(sideOf(last))
	vote.Confidence = clamp01(float64(repeats) / float64(2*s.minRepeats))
	vote.Reason = fmt.Sprintf("digit %d repeated %d times", last, repeats)
	return vote
}
