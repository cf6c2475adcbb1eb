// internal/core/domain/session/types.go
package session

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeDay      Type = "day"
	TypeOneTime  Type = "one_time"
	TypeRecovery Type = "recovery"
)

func (t Type) Valid() bool {
	switch t {
	case TypeDay, TypeOneTime, TypeRecovery:
		return true
	}
	return false
}

// DefaultMinBalance is ordered day > one_time > recovery.
func DefaultMinBalance(t Type) decimal.Decimal {
	switch t {
	case TypeDay:
		return decimal.NewFromInt(100)
	case TypeOneTime:
		return decimal.NewFromInt(50)
	default:
		return decimal.NewFromInt(25)
	}
}

type StakingMode string

const (
	StakingFixed      StakingMode = "fixed"
	StakingPercentage StakingMode = "percentage"
)

type ParticipantStatus string

const (
	ParticipantPending ParticipantStatus = "pending"
	ParticipantActive  ParticipantStatus = "active"
	ParticipantStopped ParticipantStatus = "stopped"
	ParticipantLeft    ParticipantStatus = "left"
	ParticipantRemoved ParticipantStatus = "removed"
)

// Session is an admin-created trading window.
type Session struct {
	ID               string          `db:"id" json:"id"`
	Name             string          `db:"name" json:"name"`
	Type             Type            `db:"type" json:"type"`
	Status           Status          `db:"status" json:"status"`
	MinBalance       decimal.Decimal `db:"min_balance" json:"minBalance"`
	DefaultTP        decimal.Decimal `db:"default_tp" json:"defaultTp"`
	DefaultSL        decimal.Decimal `db:"default_sl" json:"defaultSl"`
	Markets          pq.StringArray  `db:"markets" json:"markets"`
	StakingMode      StakingMode     `db:"staking_mode" json:"stakingMode"`
	BaseStake        decimal.Decimal `db:"base_stake" json:"baseStake"`
	DurationMinutes  int             `db:"duration_minutes" json:"durationMinutes"`
	RemainingSeconds int64           `db:"remaining_seconds" json:"remainingSeconds"`
	CreatedBy        string          `db:"created_by" json:"createdBy"`
	StartedAt        *time.Time      `db:"started_at" json:"startedAt,omitempty"`
	ResumedAt        *time.Time      `db:"resumed_at" json:"resumedAt,omitempty"`
	PausedAt         *time.Time      `db:"paused_at" json:"pausedAt,omitempty"`
	EndedAt          *time.Time      `db:"ended_at" json:"endedAt,omitempty"`
	EndReason        string          `db:"end_reason" json:"endReason,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updatedAt"`
}

// Duration is zero for sessions without an auto-stop.
func (s *Session) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Remaining is the auto-stop time left at now. RemainingSeconds is a checkpoint
// taken at start, pause and resume; a running session keeps consuming it from ResumedAt.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s.DurationMinutes <= 0 {
		return 0
	}
	left := time.Duration(s.RemainingSeconds) * time.Second
	if s.Status == StatusRunning && s.ResumedAt != nil {
		left -= now.Sub(*s.ResumedAt)
	}
	if left < 0 {
		return 0
	}
	return left
}

func (s *Session) Clone() *Session {
	c := *s
	c.Markets = append(pq.StringArray(nil), s.Markets...)
	return &c
}

// Participant is one user's membership in a session.
type Participant struct {
	SessionID      string            `db:"session_id" json:"sessionId"`
	UserID         string            `db:"user_id" json:"userId"`
	Status         ParticipantStatus `db:"status" json:"status"`
	TP             decimal.Decimal   `db:"tp" json:"tp"`
	SL             decimal.Decimal   `db:"sl" json:"sl"`
	InitialBalance decimal.Decimal   `db:"initial_balance" json:"initialBalance"`
	CurrentPnL     decimal.Decimal   `db:"current_pnl" json:"currentPnl"`
	JoinedAt       *time.Time        `db:"joined_at" json:"joinedAt,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updatedAt"`
}

// ID identifies the participant in trade events.
func (p *Participant) ID() string {
	return p.SessionID + ":" + p.UserID
}

// Actor is whoever invokes a session operation.
type Actor struct {
	UserID  string
	IsAdmin bool
}

// SystemActor performs automatic transitions such as auto-stop.
var SystemActor = Actor{UserID: "system", IsAdmin: true}

type CreateParams struct {
	Name            string
	Type            Type
	MinBalance      decimal.Decimal
	DefaultTP       decimal.Decimal
	DefaultSL       decimal.Decimal
	Markets         []string
	StakingMode     StakingMode
	BaseStake       decimal.Decimal
	DurationMinutes int
}

// TradeOutcome reports how a closed trade affected a participant.
type TradeOutcome struct {
	Participant *Participant
	Stopped     bool
	Reason      string // TP_REACHED | SL_REACHED when Stopped
}
