// internal/core/domain/signals/types.go
package signals

import (
	"errors"
	"strconv"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

var ErrInsufficientData = errors.New("insufficient data")

// Tick is one quote of a market with its last digit extracted.
type Tick struct {
	Symbol  string    `json:"symbol"`
	Quote   float64   `json:"quote"`
	PipSize int       `json:"pip_size"`
	Epoch   time.Time `json:"epoch"`
	Digit   int       `json:"digit"`
}

// DigitFromQuote returns the last decimal digit of quote printed with pipSize decimals.
func DigitFromQuote(quote float64, pipSize int) int {
	if pipSize < 0 {
		pipSize = 0
	}
	s := strconv.FormatFloat(quote, 'f', pipSize, 64)
	last := s[len(s)-1]
	if last < '0' || last > '9' {
		return 0
	}
	return int(last - '0')
}

type ConfidenceLevel string

const (
	LevelHigh   ConfidenceLevel = "high"
	LevelMedium ConfidenceLevel = "medium"
	LevelLow    ConfidenceLevel = "low"
)

// Vote is the output of one auxiliary strategy. An empty Side means no opinion.
type Vote struct {
	Strategy   string           `json:"strategy"`
	Side       events.Direction `json:"side,omitempty"`
	Confidence float64          `json:"confidence"`
	Reason     string           `json:"reason"`
}

// Input is the rolling history of one market; Times[i] belongs to Digits[i].
type Input struct {
	Market string
	Digits []int
	Times  []time.Time
}

type Scores struct {
	Bias        float64 `json:"bias"`
	Stability   float64 `json:"stability"`
	WinRatio    float64 `json:"win_ratio"`
	Consistency float64 `json:"consistency"`
}

type Validation struct {
	TrendConsistency float64       `json:"trend_consistency"`
	Stability        float64       `json:"stability"`
	AvgInterval      time.Duration `json:"avg_interval"`
	Passed           bool          `json:"passed"`
	Failures         []string      `json:"failures,omitempty"`
}

// Analysis is the full result of one scoring cycle.
type Analysis struct {
	Market        string           `json:"market"`
	Side          events.Direction `json:"side,omitempty"`
	Digit         int              `json:"digit"`
	Confidence    float64          `json:"confidence"`
	Level         ConfidenceLevel  `json:"level"`
	Scores        Scores           `json:"scores"`
	Validation    Validation       `json:"validation"`
	Probabilities [10]float64      `json:"probabilities"`
	Votes         []Vote           `json:"votes"`
	Recommended   bool             `json:"recommended"`
	MaxRuns       int              `json:"max_runs"`
	Reason        string           `json:"reason"`
	HistoryLen    int              `json:"history_len"`
	LastTick      time.Time        `json:"last_tick"`
}

// Signal returns the trade candidate of a recommended analysis.
func (a *Analysis) Signal() Signal {
	return Signal{
		Market:     a.Market,
		Side:       a.Side,
		Digit:      a.Digit,
		Confidence: a.Confidence,
		Level:      a.Level,
		Reason:     a.Reason,
		Votes:      a.Votes,
		MaxRuns:    a.MaxRuns,
		DetectedAt: a.LastTick,
	}
}

// Signal is a trade candidate handed to the risk gate.
type Signal struct {
	Market     string           `json:"market"`
	Side       events.Direction `json:"side"`
	Digit      int              `json:"digit"`
	Confidence float64          `json:"confidence"`
	Level      ConfidenceLevel  `json:"confidence_level"`
	Reason     string           `json:"reason"`
	Votes      []Vote           `json:"strategy_votes"`
	MaxRuns    int              `json:"max_runs"`
	DetectedAt time.Time        `json:"detected_at"`
}

func (s Signal) Payload() events.SignalPayload {
	digit := s.Digit
	votes := make(map[string]interface{}, len(s.Votes))
	for _, v := range s.Votes {
		votes[v.Strategy] = map[string]interface{}{
			"side":       string(v.Side),
			"confidence": v.Confidence,
			"reason":     v.Reason,
		}
	}
	return events.SignalPayload{
		Symbol:     s.Market,
		Direction:  s.Side,
		Confidence: s.Confidence,
		Digit:      &digit,
		MaxRuns:    s.MaxRuns,
		Analysis: map[string]interface{}{
			"confidenceLevel": string(s.Level),
			"reason":          s.Reason,
			"strategyVotes":   votes,
		},
	}
}
