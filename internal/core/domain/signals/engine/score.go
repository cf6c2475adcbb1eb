// internal/core/domain/signals/engine/score.go
package engine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals"
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals/detectors"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

const (
	overDigit  = 1
	underDigit = 8
)

// MarketState is the per-market memory the score depends on.
type MarketState struct {
	Cycles []events.Direction `json:"cycles"`
	Wins   []bool             `json:"wins"`
}

func (s MarketState) clone() MarketState {
	return MarketState{
		Cycles: append([]events.Direction(nil), s.Cycles...),
		Wins:   append([]bool(nil), s.Wins...),
	}
}

// Score is the pure scoring core: identical arguments give identical results.
func Score(cfg Config, in signals.Input, st MarketState) (signals.Analysis, error) {
	a := signals.Analysis{
		Market:     in.Market,
		Level:      signals.LevelLow,
		HistoryLen: len(in.Digits),
	}
	if n := len(in.Times); n > 0 {
		a.LastTick = in.Times[n-1]
	}
	if len(in.Digits) < cfg.MinHistory {
		a.Reason = fmt.Sprintf("insufficient data: %d/%d digits", len(in.Digits), cfg.MinHistory)
		return a, signals.ErrInsufficientData
	}

	window := lastDigits(in.Digits, cfg.WindowSize)
	c := digitCounts(window)
	a.Probabilities = probabilities(c, len(window))
	a.Side = pickDirection(cfg, c, len(window))
	switch a.Side {
	case events.DirectionOver:
		a.Digit = overDigit
	case events.DirectionUnder:
		a.Digit = underDigit
	}

	stability, avgInterval := tickStability(lastTimes(in.Times, cfg.WindowSize))
	a.Scores = signals.Scores{
		Bias:        biasStrength(c, len(window), a.Side),
		Stability:   stability,
		WinRatio:    winRatio(st.Wins, cfg.WinHistory),
		Consistency: consistency(st.Cycles, a.Side, cfg.ConsistencyCycles),
	}
	a.Confidence = composite(cfg.Weights, a.Scores)
	a.Level = levelFor(cfg, a.Confidence)
	a.Validation = validate(cfg, window, a.Side, stability, avgInterval)
	a.Votes = detectors.EvaluateAll(window)

	a.MaxRuns = cfg.BaseRuns
	if a.Confidence >= cfg.HighConfidence {
		a.MaxRuns = cfg.HighRuns
	}

	switch {
	case a.Side == "":
		a.Reason = "no direction: bias tie"
	case !a.Validation.Passed:
		a.Reason = "validation failed: " + strings.Join(a.Validation.Failures, ", ")
	case a.Confidence < cfg.MediumConfidence:
		a.Reason = fmt.Sprintf("confidence %.3f below %.2f", a.Confidence, cfg.MediumConfidence)
	default:
		a.Recommended = true
		a.Reason = fmt.Sprintf("%s digit %d: P(%d)=%.0f%%, confidence %.3f (%s)",
			a.Side, a.Digit, a.Digit, a.Probabilities[a.Digit]*100, a.Confidence, a.Level)
	}
	return a, nil
}

func lastDigits(digits []int, n int) []int {
	if len(digits) <= n {
		return digits
	}
	return digits[len(digits)-n:]
}

func lastTimes(times []time.Time, n int) []time.Time {
	if len(times) <= n {
		return times
	}
	return times[len(times)-n:]
}

func digitCounts(digits []int) [10]int {
	var c [10]int
	for _, d := range digits {
		if d >= 0 && d <= 9 {
			c[d]++
		}
	}
	return c
}

func probabilities(c [10]int, n int) [10]float64 {
	var p [10]float64
	if n == 0 {
		return p
	}
	for d, k := range c {
		p[d] = float64(k) / float64(n)
	}
	return p
}

// pickDirection applies the boundary rule and falls back to the majority bias.
// Counts are used instead of summed probabilities to keep the band exact.
func pickDirection(cfg Config, c [10]int, n int) events.Direction {
	if n == 0 {
		return ""
	}
	total := float64(n)
	over := float64(c[1])/total <= cfg.BoundaryMax &&
		float64(n-c[0]-c[1])/total >= cfg.BandMin
	under := float64(c[8])/total <= cfg.BoundaryMax &&
		float64(n-c[8]-c[9])/total >= cfg.BandMin

	switch {
	case over && !under:
		return events.DirectionOver
	case under && !over:
		return events.DirectionUnder
	}

	high := c[5] + c[6] + c[7] + c[8] + c[9]
	low := n - high
	switch {
	case high > low:
		return events.DirectionOver
	case low > high:
		return events.DirectionUnder
	}
	return ""
}

// biasStrength is |P(win) - P(lose)| for the contract of side.
func biasStrength(c [10]int, n int, side events.Direction) float64 {
	if n == 0 {
		return 0
	}
	var win int
	switch side {
	case events.DirectionOver:
		win = n - c[0] - c[1]
	case events.DirectionUnder:
		win = n - c[8] - c[9]
	default:
		win = c[5] + c[6] + c[7] + c[8] + c[9]
	}
	p := float64(win) / float64(n)
	return clamp01(math.Abs(2*p - 1))
}

// tickStability returns 1 - var/mean² of the inter-tick gaps and the mean gap.
func tickStability(times []time.Time) (float64, time.Duration) {
	if len(times) < 2 {
		return 0, 0
	}
	gaps := make([]float64, 0, len(times)-1)
	var sum float64
	for i := 1; i < len(times); i++ {
		g := times[i].Sub(times[i-1]).Seconds()
		gaps = append(gaps, g)
		sum += g
	}
	mean := sum / float64(len(gaps))
	if mean <= 0 {
		return 0, 0
	}
	var variance float64
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(gaps))

	avg := time.Duration(mean * float64(time.Second))
	return clamp01(1 - clamp01(variance/(mean*mean))), avg
}

func winRatio(wins []bool, n int) float64 {
	if len(wins) > n {
		wins = wins[len(wins)-n:]
	}
	if len(wins) == 0 {
		return 0.5
	}
	var w int
	for _, ok := range wins {
		if ok {
			w++
		}
	}
	return float64(w) / float64(len(wins))
}

func consistency(cycles []events.Direction, side events.Direction, n int) float64 {
	if len(cycles) < n {
		return 0.5
	}
	if side == "" {
		return 0
	}
	var agree int
	for _, d := range cycles[len(cycles)-n:] {
		if d == side {
			agree++
		}
	}
	return float64(agree) / float64(n)
}

func composite(w Weights, s signals.Scores) float64 {
	return clamp01(w.Bias*clamp01(s.Bias) +
		w.Stability*clamp01(s.Stability) +
		w.WinRatio*clamp01(s.WinRatio) +
		w.Consistency*clamp01(s.Consistency))
}

func levelFor(cfg Config, confidence float64) signals.ConfidenceLevel {
	switch {
	case confidence >= cfg.HighConfidence:
		return signals.LevelHigh
	case confidence >= cfg.MediumConfidence:
		return signals.LevelMedium
	}
	return signals.LevelLow
}

// trendConsistency is the share of consecutive sub-windows whose own direction matches side.
func trendConsistency(cfg Config, window []int, side events.Direction) float64 {
	chunks := len(window) / cfg.SubWindow
	if side == "" || chunks == 0 {
		return 0
	}
	var match int
	for i := 0; i < chunks; i++ {
		chunk := window[i*cfg.SubWindow : (i+1)*cfg.SubWindow]
		if pickDirection(cfg, digitCounts(chunk), len(chunk)) == side {
			match++
		}
	}
	return float64(match) / float64(chunks)
}

func validate(cfg Config, window []int, side events.Direction, stability float64, avg time.Duration) signals.Validation {
	v := signals.Validation{
		TrendConsistency: trendConsistency(cfg, window, side),
		Stability:        stability,
		AvgInterval:      avg,
	}
	if v.TrendConsistency < cfg.TrendThreshold {
		v.Failures = append(v.Failures, fmt.Sprintf("trend consistency %.2f < %.2f", v.TrendConsistency, cfg.TrendThreshold))
	}
	if stability < cfg.StabilityThreshold {
		v.Failures = append(v.Failures, fmt.Sprintf("stability %.2f < %.2f", stability, cfg.StabilityThreshold))
	}
	if avg <= 0 || avg > cfg.MaxAvgInterval {
		v.Failures = append(v.Failures, fmt.Sprintf("avg tick interval %v > %v", avg, cfg.MaxAvgInterval))
	}
	v.Passed = len(v.Failures) == 0
	return v
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
