// internal/core/domain/signals/detectors/types.go
package detectors

import (
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals"
)

// Detector is one auxiliary digit strategy. Implementations are pure: the
// same history always yields the same vote.
type Detector interface {
	Name() string
	Evaluate(digits []int) signals.Vote
}

const (
	NameLeastFrequent     = "least_frequent_reversal"
	NameCompression       = "compression"
	NameExhaustion        = "exhaustion_reversal"
	NameTwoPhase          = "two_phase_confirmation"
	NameTransition        = "transition_pattern"
	NameBoundaryPressure  = "boundary_pressure"
	NameCounterTrend      = "counter_trend"
	NameRepeatSuppression = "repeat_suppression"
)
