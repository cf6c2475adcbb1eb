// internal/types/events/payloads.go
package events

import "time"

type Direction string

const (
	DirectionOver  Direction = "OVER"
	DirectionUnder Direction = "UNDER"
)

func (d Direction) Valid() bool {
	return d == DirectionOver || d == DirectionUnder
}

type CloseReason string

const (
	CloseTPReached CloseReason = "TP_REACHED"
	CloseSLReached CloseReason = "SL_REACHED"
	CloseExpired   CloseReason = "EXPIRED"
	CloseManual    CloseReason = "MANUAL"
)

// SignalPayload is carried by signal.generated.
type SignalPayload struct {
	Symbol     string                 `json:"symbol"`
	Direction  Direction              `json:"direction"`
	Confidence float64                `json:"confidence"`
	Digit      *int                   `json:"digit,omitempty"`
	MaxRuns    int                    `json:"maxRuns,omitempty"`
	Analysis   map[string]interface{} `json:"analysis,omitempty"`
}

// TradeExecutedPayload is carried by trade.executed.
type TradeExecutedPayload struct {
	ContractID    string    `json:"contractId"`
	Symbol        string    `json:"symbol"`
	Direction     Direction `json:"direction"`
	Stake         float64   `json:"stake"`
	EntryPrice    float64   `json:"entryPrice"`
	StartTime     time.Time `json:"startTime"`
	ParticipantID string    `json:"participantId,omitempty"`
}

// TradeClosedPayload is carried by trade.closed.
type TradeClosedPayload struct {
	ContractID    string      `json:"contractId"`
	Symbol        string      `json:"symbol"`
	Direction     Direction   `json:"direction"`
	Stake         float64     `json:"stake"`
	ProfitLoss    float64     `json:"profitLoss"`
	CloseReason   CloseReason `json:"closeReason"`
	ParticipantID string      `json:"participantId,omitempty"`
}

// SessionPayload is carried by every session.* event.
type SessionPayload struct {
	SessionID        string `json:"sessionId"`
	Status           string `json:"status"`
	DurationMinutes  int    `json:"durationMinutes,omitempty"`
	RemainingSeconds int64  `json:"remainingSeconds,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// NotificationPayload is carried by notification, trade.failed, participant.stopped
// and bot.status events.
type NotificationPayload struct {
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Level   string                 `json:"level,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
