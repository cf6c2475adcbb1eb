package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeAssignsIdentity(t *testing.T) {
	env, err := NewEnvelope(EventSignalGenerated, SignalPayload{Symbol: "R_100", Direction: DirectionOver, Confidence: 0.7})
	require.NoError(t, err)

	assert.NotEmpty(t, env.ID)
	assert.NotEmpty(t, env.CorrelationID)
	assert.NotEqual(t, env.ID, env.CorrelationID)
	assert.False(t, env.Timestamp.IsZero())
	require.NoError(t, env.Validate())
}

func TestDeriveKeepsCorrelation(t *testing.T) {
	parent, err := NewEnvelope(EventSignalGenerated, nil, WithSession("s-1"))
	require.NoError(t, err)

	child, err := Derive(parent, EventTradeExecuted, TradeExecutedPayload{ContractID: "c-1"}, WithUser("u-1"))
	require.NoError(t, err)

	assert.Equal(t, parent.CorrelationID, child.CorrelationID)
	assert.Equal(t, "s-1", child.SessionID)
	assert.Equal(t, "u-1", child.UserID)
	assert.NotEqual(t, parent.ID, child.ID)
}

func TestEnvelopeWireFormat(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123).UTC()
	env, err := NewEnvelope(EventTradeClosed, TradeClosedPayload{ContractID: "c-9", ProfitLoss: -1.5, CloseReason: CloseSLReached},
		WithTimestamp(ts), WithCorrelation("corr-1"))
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, float64(1_700_000_000_123), wire["timestamp"])
	assert.Nil(t, wire["sessionId"])
	assert.Nil(t, wire["userId"])
	assert.Equal(t, "corr-1", wire["correlationId"])

	var back Envelope
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, ts.Equal(back.Timestamp))

	var payload TradeClosedPayload
	require.NoError(t, back.Decode(&payload))
	assert.Equal(t, "c-9", payload.ContractID)
	assert.Equal(t, CloseSLReached, payload.CloseReason)
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, TopicTradeSignals, TopicFor(EventSignalGenerated))
	assert.Equal(t, TopicSessionEvents, TopicFor(EventSessionAutoStopped))
	assert.Equal(t, TopicNotifications, TopicFor(EventTradeFailed))
	assert.True(t, TopicSessionEvents.Valid())
	assert.False(t, Topic("trades.opened").Valid())
	assert.Len(t, AllTopics(), 5)
}
