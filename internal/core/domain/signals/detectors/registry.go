// internal/core/domain/signals/detectors/registry.go
package detectors

import (
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals"
)

var registry = []Detector{
	leastFrequent{window: 100},
	compression{window: 10, maxStdDev: 1.5},
	exhaustion{minStreak: 6},
	twoPhase{window: 20},
	transition{window: 50},
	boundaryPressure{window: 50, margin: 0.05},
	counterTrend{long: 100, short: 10},
	repeatSuppression{minRepeats: 2},
}

// All returns the fixed strategy set in evaluation order.
func All() []Detector {
	out := make([]Detector, len(registry))
	copy(out, registry)
	return out
}

// EvaluateAll runs every registered strategy over digits.
func EvaluateAll(digits []int) []signals.Vote {
	votes := make([]signals.Vote, 0, len(registry))
	for _, d := range registry {
		votes = append(votes, d.Evaluate(digits))
	}
	return votes
}
