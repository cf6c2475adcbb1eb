// internal/infrastructure/transport/event_bus/event.go
package eventbus

import (
	"context"

	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

// HandlerFunc handles one envelope delivered on a topic.
type HandlerFunc func(ctx context.Context, topic events.Topic, env events.Envelope) error

// Middleware wraps delivery to subscribers.
type Middleware interface {
	Process(ctx context.Context, topic events.Topic, env events.Envelope, next HandlerFunc) error
}

// Subscriber receives envelopes for the topics it was registered on.
type Subscriber interface {
	HandleEnvelope(ctx context.Context, env events.Envelope) error
	Name() string
}
