package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

func TestDigitFromQuote(t *testing.T) {
	assert.Equal(t, 7, DigitFromQuote(1234.57, 2))
	assert.Equal(t, 0, DigitFromQuote(1234.5, 2), "trailing zero is kept by pip size")
	assert.Equal(t, 4, DigitFromQuote(9874.1234, 4))
	assert.Equal(t, 5, DigitFromQuote(105, 0))
}

func TestSignalPayload(t *testing.T) {
	s := Signal{
		Market:     "R_100",
		Side:       events.DirectionOver,
		Digit:      1,
		Confidence: 0.81,
		Level:      LevelHigh,
		MaxRuns:    3,
		Votes:      []Vote{{Strategy: "compression", Side: events.DirectionOver, Confidence: 0.4}},
	}

	p := s.Payload()
	assert.Equal(t, "R_100", p.Symbol)
	assert.Equal(t, events.DirectionOver, p.Direction)
	if assert.NotNil(t, p.Digit) {
		assert.Equal(t, 1, *p.Digit)
	}
	assert.Equal(t, 3, p.MaxRuns)
	assert.Equal(t, "high", p.Analysis["confidenceLevel"])
	assert.Contains(t, p.Analysis["strategyVotes"], "compression")
}
