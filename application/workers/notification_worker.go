// application/workers/notification_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/44dummies/tradermind-server-sub000/internal/adapters/notification"
	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/models"
	notification_repo "github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/repository/notification"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// Pusher delivers a message to a user's devices.
type Pusher interface {
	Push(ctx context.Context, msg notification.Message) error
}

// RateLimiter is satisfied by the Redis cache.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
}

const (
	pushLimitPerUser = 30
	pushLimitWindow  = time.Minute
)

// NotificationWorker turns trade and notification events into user messages,
// stores them and pushes them. Failures are counted and never retried.
type NotificationWorker struct {
	broker  Broker
	store   notification_repo.NotificationRepository
	pusher  Pusher
	limiter RateLimiter
	now     func() time.Time

	mu      sync.Mutex
	running bool

	received  atomic.Int64
	persisted atomic.Int64
	pushed    atomic.Int64
	throttled atomic.Int64
	failed    atomic.Int64
	system    atomic.Int64
}

var notificationTopics = []events.Topic{events.TopicNotifications, events.TopicTradeExecuted, events.TopicTradeClosed}

// NewNotificationWorker accepts a nil limiter when Redis is not configured.
func NewNotificationWorker(b Broker, store notification_repo.NotificationRepository, pusher Pusher, limiter RateLimiter) *NotificationWorker {
	return &NotificationWorker{
		broker:  b,
		store:   store,
		pusher:  pusher,
		limiter: limiter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (w *NotificationWorker) Name() string { return "notification_worker" }

func (w *NotificationWorker) Start(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := subscribeAll(w.broker, GroupNotification, notificationTopics, w.handle); err != nil {
		return err
	}
	w.running = true
	return nil
}

func (w *NotificationWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	return unsubscribeAll(w.broker, GroupNotification, notificationTopics)
}

func (w *NotificationWorker) handle(ctx context.Context, env events.Envelope) error {
	w.received.Add(1)

	msg, err := w.build(env)
	if err != nil {
		w.failed.Add(1)
		logger.Warn("⚠️ Notification for %s (%s) not built: %v", env.Type, env.ID, err)
		return nil
	}
	if msg.UserID == "" {
		w.system.Add(1)
		logger.Info("📣 %s: %s", msg.Title, msg.Body)
		return nil
	}

	if err := w.persist(ctx, env, msg); err != nil {
		w.failed.Add(1)
		logger.Warn("⚠️ Store notification %s for %s: %v", msg.ID, msg.UserID, err)
	} else {
		w.persisted.Add(1)
	}

	if w.limiter != nil {
		allowed, err := w.limiter.CheckRateLimit(ctx, "push:"+msg.UserID, pushLimitPerUser, pushLimitWindow)
		if err == nil && !allowed {
			w.throttled.Add(1)
			logger.Debug("⏳ Push to %s throttled", msg.UserID)
			return nil
		}
	}

	if w.pusher == nil {
		return nil
	}
	if err := w.pusher.Push(ctx, msg); err != nil {
		w.failed.Add(1)
		logger.Debug("Push %s to %s not delivered: %v", msg.ID, msg.UserID, err)
		return nil
	}
	w.pushed.Add(1)
	if err := w.store.MarkDelivered(ctx, msg.ID); err != nil {
		logger.Debug("Mark %s delivered: %v", msg.ID, err)
	}
	return nil
}

func (w *NotificationWorker) build(env events.Envelope) (notification.Message, error) {
	msg := notification.Message{
		ID:        uuid.NewString(),
		UserID:    env.UserID,
		Type:      string(env.Type),
		CreatedAt: w.now(),
	}

	switch env.Type {
	case events.EventTradeExecuted:
		var p events.TradeExecutedPayload
		if err := env.Decode(&p); err != nil {
			return msg, err
		}
		msg.Title = "Trade opened"
		msg.Body = fmt.Sprintf("%s %s, stake %.2f", p.Symbol, p.Direction, p.Stake)
		msg.Level = "info"
		msg.Data = map[string]interface{}{"contractId": p.ContractID, "symbol": p.Symbol}

	case events.EventTradeClosed:
		var p events.TradeClosedPayload
		if err := env.Decode(&p); err != nil {
			return msg, err
		}
		msg.Title = "Trade lost"
		msg.Level = "warning"
		if p.ProfitLoss > 0 {
			msg.Title = "Trade won"
			msg.Level = "success"
		}
		msg.Body = fmt.Sprintf("%s %s closed (%s): %+.2f", p.Symbol, p.Direction, p.CloseReason, p.ProfitLoss)
		msg.Data = map[string]interface{}{
			"contractId": p.ContractID,
			"profitLoss": p.ProfitLoss,
		}

	default:
		var p events.NotificationPayload
		if err := env.Decode(&p); err != nil {
			return msg, err
		}
		msg.Title = p.Title
		msg.Body = p.Message
		msg.Level = p.Level
		msg.Data = p.Data
	}
	return msg, nil
}

func (w *NotificationWorker) persist(ctx context.Context, env events.Envelope, msg notification.Message) error {
	var data []byte
	if len(msg.Data) > 0 {
		raw, err := json.Marshal(msg.Data)
		if err != nil {
			return err
		}
		data = raw
	}
	n := &models.Notification{
		ID:            msg.ID,
		UserID:        msg.UserID,
		CorrelationID: env.CorrelationID,
		Type:          msg.Type,
		Title:         msg.Title,
		Message:       msg.Body,
		Data:          data,
		CreatedAt:     msg.CreatedAt,
	}
	if env.SessionID != "" {
		sid := env.SessionID
		n.SessionID = &sid
	}
	return w.store.Save(ctx, n)
}

func (w *NotificationWorker) Stats() map[string]interface{} {
	return map[string]interface{}{
		"received":  w.received.Load(),
		"persisted": w.persisted.Load(),
		"pushed":    w.pushed.Load(),
		"throttled": w.throttled.Load(),
		"failed":    w.failed.Load(),
		"system":    w.system.Load(),
	}
}
