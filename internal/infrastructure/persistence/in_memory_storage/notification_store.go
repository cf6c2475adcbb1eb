// internal/infrastructure/persistence/in_memory_storage/notification_store.go
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/models"
	notification_repo "github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/repository/notification"
)

type NotificationStore struct {
	mu     sync.RWMutex
	byID   map[string]*models.Notification
	byUser map[string][]string
}

var _ notification_repo.NotificationRepository = (*NotificationStore)(nil)

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{
		byID:   make(map[string]*models.Notification),
		byUser: make(map[string][]string),
	}
}

func (s *NotificationStore) Save(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[n.ID]; exists {
		return nil
	}
	cp := *n
	s.byID[n.ID] = &cp
	s.byUser[n.UserID] = append(s.byUser[n.UserID], n.ID)
	return nil
}

func (s *NotificationStore) ListByUser(_ context.Context, userID string, limit int) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	out := make([]*models.Notification, 0, len(ids))
	for _, id := range ids {
		cp := *s.byID[id]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *NotificationStore) MarkDelivered(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, exists := s.byID[id]
	if !exists {
		return notification_repo.ErrNotificationNotFound
	}
	n.Delivered = true
	return nil
}
