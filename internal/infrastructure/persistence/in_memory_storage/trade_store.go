// internal/infrastructure/persistence/in_memory_storage/trade_store.go
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/models"
	trade_repo "github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/repository/trade"
)

// TradeStore mirrors the Postgres trade repository semantics in memory.
type TradeStore struct {
	mu     sync.RWMutex
	trades map[string]*models.Trade
	now    func() time.Time
}

var _ trade_repo.TradeRepository = (*TradeStore)(nil)

func NewTradeStore() *TradeStore {
	return &TradeStore{
		trades: make(map[string]*models.Trade),
		now:    time.Now,
	}
}

func (s *TradeStore) SaveOpened(_ context.Context, trade *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trades[trade.ContractID]; exists {
		return nil
	}
	cp := *trade
	cp.Status = models.TradeStatusOpen
	cp.CreatedAt = s.now()
	cp.UpdatedAt = cp.CreatedAt
	s.trades[trade.ContractID] = &cp
	return nil
}

func (s *TradeStore) Close(_ context.Context, trade *models.Trade) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, exists := s.trades[trade.ContractID]
	if exists && existing.IsClosed() {
		return false, nil
	}
	if !exists {
		cp := *trade
		cp.CreatedAt = now
		existing = &cp
		s.trades[trade.ContractID] = existing
	}
	existing.Status = models.TradeStatusClosed
	existing.ProfitLoss = trade.ProfitLoss
	existing.CloseReason = trade.CloseReason
	existing.ClosedAt = trade.ClosedAt
	existing.UpdatedAt = now
	return true, nil
}

func (s *TradeStore) GetByContractID(_ context.Context, contractID string) (*models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.trades[contractID]
	if !exists {
		return nil, trade_repo.ErrTradeNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *TradeStore) ListBySession(_ context.Context, sessionID string, limit int) ([]*models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Trade
	for _, t := range s.trades {
		if t.SessionID == sessionID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
