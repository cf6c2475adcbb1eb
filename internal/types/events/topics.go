// internal/types/events/topics.go
package events

// Topic names a broker stream. The set is fixed.
type Topic string

const (
	TopicTradeSignals  Topic = "trade.signals"
	TopicTradeExecuted Topic = "trade.executed"
	TopicTradeClosed   Topic = "trade.closed"
	TopicNotifications Topic = "notifications"
	TopicSessionEvents Topic = "session.events"
)

var allTopics = []Topic{
	TopicTradeSignals,
	TopicTradeExecuted,
	TopicTradeClosed,
	TopicNotifications,
	TopicSessionEvents,
}

func AllTopics() []Topic {
	out := make([]Topic, len(allTopics))
	copy(out, allTopics)
	return out
}

func (t Topic) Valid() bool {
	for _, known := range allTopics {
		if t == known {
			return true
		}
	}
	return false
}

func (t Topic) String() string { return string(t) }

// EventType is the envelope "type" discriminator.
type EventType string

const (
	EventSignalGenerated    EventType = "signal.generated"
	EventTradeExecuted      EventType = "trade.executed"
	EventTradeClosed        EventType = "trade.closed"
	EventTradeFailed        EventType = "trade.failed"
	EventNotification       EventType = "notification"
	EventSessionCreated     EventType = "session.created"
	EventSessionStarted     EventType = "session.started"
	EventSessionPaused      EventType = "session.paused"
	EventSessionResumed     EventType = "session.resumed"
	EventSessionStopped     EventType = "session.stopped"
	EventSessionCancelled   EventType = "session.cancelled"
	EventSessionAutoStopped EventType = "session.auto_stopped"
	EventParticipantStopped EventType = "participant.stopped"
	EventBotStatus          EventType = "bot.status"
)

// TopicFor returns the stream an event type is published on.
func TopicFor(t EventType) Topic {
	switch t {
	case EventSignalGenerated:
		return TopicTradeSignals
	case EventTradeExecuted:
		return TopicTradeExecuted
	case EventTradeClosed:
		return TopicTradeClosed
	case EventSessionCreated, EventSessionStarted, EventSessionPaused, EventSessionResumed,
		EventSessionStopped, EventSessionCancelled, EventSessionAutoStopped:
		return TopicSessionEvents
	default:
		return TopicNotifications
	}
}
