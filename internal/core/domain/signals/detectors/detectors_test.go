package detectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

func TestRegistryIsFixed(t *testing.T) {
	all := All()
	require.Len(t, all, 8)

	seen := map[string]bool{}
	for _, d := range all {
		assert.False(t, seen[d.Name()], "duplicate strategy %s", d.Name())
		seen[d.Name()] = true
	}

	all[0] = nil
	assert.NotNil(t, All()[0], "callers must not be able to mutate the registry")
}

func TestEvaluateAllIsDeterministic(t *testing.T) {
	digits := []int{3, 7, 1, 9, 9, 2, 5, 5, 5, 0, 4, 8, 6, 2, 1, 7, 3, 3, 9, 8}

	first := EvaluateAll(digits)
	second := EvaluateAll(digits)
	assert.Equal(t, first, second)
	for _, v := range first {
		assert.GreaterOrEqual(t, v.Confidence, 0.0)
		assert.LessOrEqual(t, v.Confidence, 1.0)
	}
}

func TestExhaustionVotesAgainstStreak(t *testing.T) {
	vote := exhaustion{minStreak: 6}.Evaluate([]int{1, 2, 6, 7, 8, 9, 5, 6, 7})
	assert.Equal(t, events.DirectionUnder, vote.Side)
	assert.InDelta(t, 7.0/12.0, vote.Confidence, 1e-9)

	vote = exhaustion{minStreak: 6}.Evaluate([]int{1, 6, 7})
	assert.Empty(t, vote.Side)
}

func TestLeastFrequentEdgeDigit(t *testing.T) {
	var digits []int
	for i := 0; i < 100; i++ {
		digits = append(digits, 2+i%8)
	}
	digits[10] = 0
	digits[20] = 0
	digits[30] = 1
	digits[40] = 9
	digits[50] = 8

	vote := leastFrequent{window: 100}.Evaluate(digits)
	assert.Equal(t, events.DirectionOver, vote.Side)
	assert.Greater(t, vote.Confidence, 0.0)
}

func TestRepeatSuppression(t *testing.T) {
	vote := repeatSuppression{minRepeats: 2}.Evaluate([]int{4, 8, 8})
	assert.Equal(t, events.DirectionUnder, vote.Side)

	vote = repeatSuppression{minRepeats: 2}.Evaluate([]int{4, 8})
	assert.Empty(t, vote.Side)
}

func TestCounterTrendOnlyWhenWindowsDisagree(t *testing.T) {
	long := make([]int, 0, 100)
	for i := 0; i < 90; i++ {
		long = append(long, 7)
	}
	for i := 0; i < 10; i++ {
		long = append(long, 1)
	}
	vote := counterTrend{long: 100, short: 10}.Evaluate(long)
	assert.Equal(t, events.DirectionOver, vote.Side)
	assert.InDelta(t, 0.9, vote.Confidence, 1e-9)

	vote = counterTrend{long: 100, short: 10}.Evaluate(long[:90])
	assert.Empty(t, vote.Side)
}
