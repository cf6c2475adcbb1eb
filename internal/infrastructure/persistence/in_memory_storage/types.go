// internal/infrastructure/persistence/in_memory_storage/types.go
package storage

import (
	"time"
)

type StorageStats struct {
	TotalSymbols        int       `json:"total_symbols"`
	TotalDataPoints     int64     `json:"total_data_points"`
	OldestTimestamp     time.Time `json:"oldest_timestamp"`
	NewestTimestamp     time.Time `json:"newest_timestamp"`
	StorageType         string    `json:"storage_type"`
	MaxHistoryPerSymbol int       `json:"max_history_per_symbol"`
}

var (
	ErrSymbolNotFound = StorageError{"symbol not found"}
	ErrStorageFull    = StorageError{"storage is full"}
)

type StorageError struct {
	Message string
}

func (e StorageError) Error() string {
	return e.Message
}

type StorageConfig struct {
	MaxHistoryPerSymbol int
	MaxSymbols          int
}

type StorageOption func(*StorageConfig)

func WithMaxHistoryPerSymbol(max int) StorageOption {
	return func(c *StorageConfig) {
		c.MaxHistoryPerSymbol = max
	}
}

func WithMaxSymbols(max int) StorageOption {
	return func(c *StorageConfig) {
		c.MaxSymbols = max
	}
}
