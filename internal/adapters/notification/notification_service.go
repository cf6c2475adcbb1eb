// internal/adapters/notification/notification_service.go
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

var (
	ErrNoRecipient = errors.New("no connected recipient")
	ErrDisabled    = errors.New("notification service disabled")
)

// Message is one push to one user.
type Message struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Body      string                 `json:"message"`
	Level     string                 `json:"level,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Notifier is a single push channel.
type Notifier interface {
	Push(ctx context.Context, msg Message) error
	Name() string
	IsEnabled() bool
	GetStats() map[string]interface{}
}

// CompositeNotificationService fans a message out to every enabled notifier.
// Push succeeds when at least one channel delivered it.
type CompositeNotificationService struct {
	mu        sync.RWMutex
	notifiers []Notifier
	enabled   bool

	totalSent  int
	successful int
	failed     int
	lastSent   time.Time
}

func NewCompositeNotificationService(notifiers ...Notifier) *CompositeNotificationService {
	c := &CompositeNotificationService{enabled: true}
	for _, n := range notifiers {
		if n != nil {
			c.notifiers = append(c.notifiers, n)
		}
	}
	return c
}

func (c *CompositeNotificationService) Name() string {
	return "composite_notification_service"
}

func (c *CompositeNotificationService) AddNotifier(notifier Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifiers = append(c.notifiers, notifier)
}

func (c *CompositeNotificationService) GetNotifiers() []Notifier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Notifier, len(c.notifiers))
	copy(out, c.notifiers)
	return out
}

func (c *CompositeNotificationService) Push(ctx context.Context, msg Message) error {
	notifiers := c.GetNotifiers()

	c.mu.RLock()
	enabled := c.enabled
	c.mu.RUnlock()
	if !enabled {
		return ErrDisabled
	}

	var errs []error
	sent := 0
	for _, n := range notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Push(ctx, msg); err != nil {
			if !errors.Is(err, ErrNoRecipient) {
				logger.Warn("⚠️ Push via %s to %s failed: %v", n.Name(), msg.UserID, err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		sent++
	}

	c.mu.Lock()
	c.totalSent++
	c.lastSent = time.Now()
	if sent > 0 {
		c.successful++
	} else {
		c.failed++
	}
	c.mu.Unlock()

	if sent == 0 {
		if len(errs) == 0 {
			return ErrNoRecipient
		}
		return errors.Join(errs...)
	}
	return nil
}

func (c *CompositeNotificationService) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

func (c *CompositeNotificationService) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// HealthCheck is true while at least one channel is enabled.
func (c *CompositeNotificationService) HealthCheck() bool {
	if !c.IsEnabled() {
		return false
	}
	for _, n := range c.GetNotifiers() {
		if n.IsEnabled() {
			return true
		}
	}
	return false
}

func (c *CompositeNotificationService) GetStats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	notifierStats := make(map[string]interface{}, len(c.notifiers))
	for _, n := range c.notifiers {
		notifierStats[n.Name()] = n.GetStats()
	}
	return map[string]interface{}{
		"total_sent":     c.totalSent,
		"successful":     c.successful,
		"failed":         c.failed,
		"last_sent_time": c.lastSent,
		"enabled":        c.enabled,
		"notifiers":      notifierStats,
	}
}
