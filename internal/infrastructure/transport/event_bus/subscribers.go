// internal/infrastructure/transport/event_bus/subscribers.go
package eventbus

import (
	"context"

	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

// BaseSubscriber adapts a plain function to Subscriber.
type BaseSubscriber struct {
	name    string
	handler func(ctx context.Context, env events.Envelope) error
}

func NewBaseSubscriber(name string, handler func(ctx context.Context, env events.Envelope) error) *BaseSubscriber {
	return &BaseSubscriber{
		name:    name,
		handler: handler,
	}
}

func (s *BaseSubscriber) HandleEnvelope(ctx context.Context, env events.Envelope) error {
	return s.handler(ctx, env)
}

func (s *BaseSubscriber) Name() string {
	return s.name
}
