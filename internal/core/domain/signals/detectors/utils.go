// internal/core/domain/signals/detectors/utils.go
package detectors

import (
	"math"

	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

func tail(digits []int, n int) []int {
	if n <= 0 || len(digits) <= n {
		return digits
	}
	return digits[len(digits)-n:]
}

func counts(digits []int) [10]int {
	var c [10]int
	for _, d := range digits {
		if d >= 0 && d <= 9 {
			c[d]++
		}
	}
	return c
}

// sideOf maps high digits (5-9) to OVER and low digits (0-4) to UNDER.
func sideOf(d int) events.Direction {
	if d >= 5 {
		return events.DirectionOver
	}
	return events.DirectionUnder
}

func opposite(side events.Direction) events.Direction {
	if side == events.DirectionOver {
		return events.DirectionUnder
	}
	return events.DirectionOver
}

// majority returns the dominant side and its share; a tie returns "".
func majority(digits []int) (events.Direction, float64) {
	if len(digits) == 0 {
		return "", 0
	}
	high := 0
	for _, d := range digits {
		if d >= 5 {
			high++
		}
	}
	low := len(digits) - high
	switch {
	case high > low:
		return events.DirectionOver, float64(high) / float64(len(digits))
	case low > high:
		return events.DirectionUnder, float64(low) / float64(len(digits))
	}
	return "", 0.5
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
