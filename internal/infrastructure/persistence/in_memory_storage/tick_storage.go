// internal/infrastructure/persistence/in_memory_storage/tick_storage.go
package storage

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals"
)

// TickStorage keeps a bounded rolling tick history per symbol.
type TickStorage interface {
	StoreTick(tick signals.Tick) error
	GetHistory(symbol string, limit int) ([]signals.Tick, error)
	// Input returns the last limit ticks as a signal engine input.
	Input(symbol string, limit int) (signals.Input, error)
	GetLatest(symbol string) (signals.Tick, bool)
	Count(symbol string) int
	GetSymbols() []string
	RemoveSymbol(symbol string)
	Clear()
	GetStats() StorageStats
}

type InMemoryTickStorage struct {
	mu      sync.RWMutex
	history map[string]*list.List
	config  StorageConfig
}

func NewInMemoryTickStorage(options ...StorageOption) *InMemoryTickStorage {
	config := StorageConfig{
		MaxHistoryPerSymbol: 1000,
		MaxSymbols:          100,
	}
	for _, option := range options {
		option(&config)
	}

	return &InMemoryTickStorage{
		history: make(map[string]*list.List),
		config:  config,
	}
}

func (s *InMemoryTickStorage) StoreTick(tick signals.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	historyList, exists := s.history[tick.Symbol]
	if !exists {
		if len(s.history) >= s.config.MaxSymbols {
			return ErrStorageFull
		}
		historyList = list.New()
		s.history[tick.Symbol] = historyList
	}

	historyList.PushBack(tick)
	for historyList.Len() > s.config.MaxHistoryPerSymbol {
		historyList.Remove(historyList.Front())
	}
	return nil
}

// GetHistory returns up to limit most recent ticks, oldest first.
func (s *InMemoryTickStorage) GetHistory(symbol string, limit int) ([]signals.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	historyList, exists := s.history[symbol]
	if !exists {
		return nil, ErrSymbolNotFound
	}

	if limit <= 0 || limit > historyList.Len() {
		limit = historyList.Len()
	}

	result := make([]signals.Tick, limit)
	element := historyList.Back()
	for i := limit - 1; i >= 0 && element != nil; i-- {
		result[i] = element.Value.(signals.Tick)
		element = element.Prev()
	}
	return result, nil
}

func (s *InMemoryTickStorage) Input(symbol string, limit int) (signals.Input, error) {
	ticks, err := s.GetHistory(symbol, limit)
	if err != nil {
		return signals.Input{Market: symbol}, err
	}

	in := signals.Input{
		Market: symbol,
		Digits: make([]int, len(ticks)),
		Times:  make([]time.Time, len(ticks)),
	}
	for i, t := range ticks {
		in.Digits[i] = t.Digit
		in.Times[i] = t.Epoch
	}
	return in, nil
}

func (s *InMemoryTickStorage) GetLatest(symbol string) (signals.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	historyList, exists := s.history[symbol]
	if !exists || historyList.Len() == 0 {
		return signals.Tick{}, false
	}
	return historyList.Back().Value.(signals.Tick), true
}

func (s *InMemoryTickStorage) Count(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if historyList, exists := s.history[symbol]; exists {
		return historyList.Len()
	}
	return 0
}

func (s *InMemoryTickStorage) GetSymbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.history))
	for symbol := range s.history {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func (s *InMemoryTickStorage) RemoveSymbol(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, symbol)
}

func (s *InMemoryTickStorage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = make(map[string]*list.List)
}

func (s *InMemoryTickStorage) GetStats() StorageStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StorageStats{
		TotalSymbols:        len(s.history),
		StorageType:         "in_memory",
		MaxHistoryPerSymbol: s.config.MaxHistoryPerSymbol,
	}
	first := true
	for _, historyList := range s.history {
		stats.TotalDataPoints += int64(historyList.Len())
		if front := historyList.Front(); front != nil {
			ts := front.Value.(signals.Tick).Epoch
			if first || ts.Before(stats.OldestTimestamp) {
				stats.OldestTimestamp = ts
				first = false
			}
		}
		if back := historyList.Back(); back != nil {
			if ts := back.Value.(signals.Tick).Epoch; ts.After(stats.NewestTimestamp) {
				stats.NewestTimestamp = ts
			}
		}
	}
	return stats
}
