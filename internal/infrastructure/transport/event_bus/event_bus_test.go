package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

func newEnvelope(t *testing.T) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(events.EventNotification, events.NotificationPayload{Title: "hi"})
	require.NoError(t, err)
	return env
}

func TestPublishSyncDeliversBeforeReturning(t *testing.T) {
	bus := NewEventBus(EventBusConfig{EnableMetrics: true})

	var got []string
	bus.Subscribe(events.TopicNotifications, NewBaseSubscriber("a", func(_ context.Context, env events.Envelope) error {
		got = append(got, "a:"+env.ID)
		return nil
	}))
	bus.Subscribe(events.TopicNotifications, NewBaseSubscriber("b", func(_ context.Context, env events.Envelope) error {
		got = append(got, "b:"+env.ID)
		return nil
	}))

	env := newEnvelope(t)
	require.NoError(t, bus.PublishSync(context.Background(), events.TopicNotifications, env))
	assert.Equal(t, []string{"a:" + env.ID, "b:" + env.ID}, got)

	m := bus.GetMetrics()
	assert.EqualValues(t, 1, m.EventsPublished)
	assert.EqualValues(t, 2, m.EventsProcessed)
	assert.Equal(t, 2, m.SubscribersCount[events.TopicNotifications])
}

func TestPublishSyncJoinsErrorsAndRecoversPanics(t *testing.T) {
	bus := NewEventBus(EventBusConfig{})
	boom := errors.New("boom")

	calledAfter := false
	bus.Subscribe(events.TopicTradeClosed, NewBaseSubscriber("fails", func(context.Context, events.Envelope) error { return boom }))
	bus.Subscribe(events.TopicTradeClosed, NewBaseSubscriber("panics", func(context.Context, events.Envelope) error { panic("bad") }))
	bus.Subscribe(events.TopicTradeClosed, NewBaseSubscriber("ok", func(context.Context, events.Envelope) error {
		calledAfter = true
		return nil
	}))

	err := bus.PublishSync(context.Background(), events.TopicTradeClosed, newEnvelope(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "panic")
	assert.True(t, calledAfter)
	assert.EqualValues(t, 1, bus.GetMetrics().EventsFailed)
}

func TestValidationRejectsUnknownTopic(t *testing.T) {
	bus := NewEventBus(EventBusConfig{})
	called := false
	bus.Subscribe("bogus", NewBaseSubscriber("x", func(context.Context, events.Envelope) error {
		called = true
		return nil
	}))

	err := bus.Dispatch(context.Background(), "bogus", newEnvelope(t))
	require.Error(t, err)
	assert.False(t, called)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus(EventBusConfig{})
	sub := NewBaseSubscriber("x", func(context.Context, events.Envelope) error { return nil })

	bus.Subscribe(events.TopicSessionEvents, sub)
	assert.Equal(t, []events.Topic{events.TopicSessionEvents}, bus.GetTopics())

	bus.Unsubscribe(events.TopicSessionEvents, sub)
	assert.Equal(t, 0, bus.GetSubscriberCount(events.TopicSessionEvents))
	assert.Empty(t, bus.GetTopics())
}

func TestStartStopRestart(t *testing.T) {
	bus := NewEventBus()
	bus.Start()
	assert.True(t, bus.HealthCheck())
	bus.Stop()
	assert.False(t, bus.IsRunning())
	bus.Start()
	bus.Stop()
}
