// internal/infrastructure/persistence/in_memory_storage/session_store.go
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/session"
)

// SessionStore is the in-memory session.Store used when Postgres is disabled.
type SessionStore struct {
	mu           sync.RWMutex
	sessions     map[string]*session.Session
	participants map[string]map[string]*session.Participant // sessionID -> userID
}

var _ session.Store = (*SessionStore)(nil)

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:     make(map[string]*session.Session),
		participants: make(map[string]map[string]*session.Participant),
	}
}

func (s *SessionStore) CreateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return session.ErrConcurrentUpdate
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *SessionStore) UpdateSession(_ context.Context, sess *session.Session, expected session.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.sessions[sess.ID]
	if !exists {
		return session.ErrSessionNotFound
	}
	if current.Status != expected {
		return session.ErrConcurrentUpdate
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, session.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *SessionStore) ListSessions(_ context.Context, statuses ...session.Status) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*session.Session
	for _, sess := range s.sessions {
		if len(statuses) == 0 || containsStatus(statuses, sess.Status) {
			out = append(out, sess.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *SessionStore) UpsertParticipant(_ context.Context, p *session.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySession, exists := s.participants[p.SessionID]
	if !exists {
		bySession = make(map[string]*session.Participant)
		s.participants[p.SessionID] = bySession
	}
	cp := *p
	if prev, ok := bySession[p.UserID]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	bySession[p.UserID] = &cp
	return nil
}

func (s *SessionStore) GetParticipant(_ context.Context, sessionID, userID string) (*session.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.participants[sessionID][userID]
	if !exists {
		return nil, session.ErrParticipantNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *SessionStore) ListParticipants(_ context.Context, sessionID string, statuses ...session.ParticipantStatus) ([]*session.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*session.Participant
	for _, p := range s.participants[sessionID] {
		if len(statuses) > 0 && !containsParticipantStatus(statuses, p.Status) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func containsStatus(list []session.Status, s session.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsParticipantStatus(list []session.ParticipantStatus, s session.ParticipantStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
