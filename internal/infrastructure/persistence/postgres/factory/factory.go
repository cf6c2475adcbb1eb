// internal/infrastructure/persistence/postgres/factory/factory.go
package postgres_factory

import (
	"errors"
	"sync"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/session"
	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/database"
	notification_repo "github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/repository/notification"
	trade_repo "github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/repository/trade"
	trading_session_repo "github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/repository/trading_session"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

var (
	ErrNoDatabaseService = errors.New("DatabaseService must not be nil")
	ErrNotConnected      = errors.New("database connection is not established")
)

// RepositoryFactory lazily builds PostgreSQL repositories over one pool.
type RepositoryFactory struct {
	db                     *database.DatabaseService
	sessionStore           session.Store
	tradeRepository        trade_repo.TradeRepository
	notificationRepository notification_repo.NotificationRepository
	mu                     sync.Mutex
}

func NewRepositoryFactory(db *database.DatabaseService) (*RepositoryFactory, error) {
	if db == nil {
		return nil, ErrNoDatabaseService
	}
	return &RepositoryFactory{db: db}, nil
}

func (rf *RepositoryFactory) SessionStore() (session.Store, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.sessionStore == nil {
		db := rf.db.GetDB()
		if db == nil {
			return nil, ErrNotConnected
		}
		rf.sessionStore = trading_session_repo.NewTradingSessionRepository(db)
		logger.Info("✅ TradingSessionRepository created")
	}
	return rf.sessionStore, nil
}

func (rf *RepositoryFactory) TradeRepository() (trade_repo.TradeRepository, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.tradeRepository == nil {
		db := rf.db.GetDB()
		if db == nil {
			return nil, ErrNotConnected
		}
		rf.tradeRepository = trade_repo.NewTradeRepository(db)
		logger.Info("✅ TradeRepository created")
	}
	return rf.tradeRepository, nil
}

func (rf *RepositoryFactory) NotificationRepository() (notification_repo.NotificationRepository, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.notificationRepository == nil {
		db := rf.db.GetDB()
		if db == nil {
			return nil, ErrNotConnected
		}
		rf.notificationRepository = notification_repo.NewNotificationRepository(db)
		logger.Info("✅ NotificationRepository created")
	}
	return rf.notificationRepository, nil
}

func (rf *RepositoryFactory) GetHealthStatus() map[string]interface{} {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	return map[string]interface{}{
		"database_healthy":              rf.db.HealthCheck(),
		"database_state":                rf.db.State(),
		"session_store_ready":           rf.sessionStore != nil,
		"trade_repository_ready":        rf.tradeRepository != nil,
		"notification_repository_ready": rf.notificationRepository != nil,
	}
}
