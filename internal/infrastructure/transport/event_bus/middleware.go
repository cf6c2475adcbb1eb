// internal/infrastructure/transport/event_bus/middleware.go
package eventbus

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// LoggingMiddleware logs every dispatch with its duration.
type LoggingMiddleware struct{}

func (m *LoggingMiddleware) Process(ctx context.Context, topic events.Topic, env events.Envelope, next HandlerFunc) error {
	start := time.Now()
	err := next(ctx, topic, env)
	if err != nil {
		logger.Warn("❌ [%s] %s (%s) failed after %v: %v", topic, env.Type, env.ID, time.Since(start), err)
	} else {
		logger.Debug("✅ [%s] %s (%s) handled in %v", topic, env.Type, env.ID, time.Since(start))
	}
	return err
}

// ValidationMiddleware rejects malformed envelopes before any subscriber sees them.
type ValidationMiddleware struct{}

func (m *ValidationMiddleware) Process(ctx context.Context, topic events.Topic, env events.Envelope, next HandlerFunc) error {
	if !topic.Valid() {
		return fmt.Errorf("unknown topic %q", topic)
	}
	if err := env.Validate(); err != nil {
		return fmt.Errorf("invalid envelope on %s: %w", topic, err)
	}
	return next(ctx, topic, env)
}

// RecoveryMiddleware turns a subscriber panic into an error.
type RecoveryMiddleware struct{}

func (m *RecoveryMiddleware) Process(ctx context.Context, topic events.Topic, env events.Envelope, next HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("⚠️ Panic while handling %s on %s: %v\n%s", env.Type, topic, r, debug.Stack())
			err = fmt.Errorf("panic handling %s: %v", env.Type, r)
		}
	}()
	return next(ctx, topic, env)
}

// MetricsMiddleware accumulates processing time into the bus metrics.
type MetricsMiddleware struct {
	metrics *Metrics
}

func (m *MetricsMiddleware) Process(ctx context.Context, topic events.Topic, env events.Envelope, next HandlerFunc) error {
	start := time.Now()
	err := next(ctx, topic, env)

	m.metrics.Mu.Lock()
	m.metrics.ProcessingTime += time.Since(start)
	m.metrics.Mu.Unlock()
	return err
}
