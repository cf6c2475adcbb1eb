// internal/types/events/envelope.go
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyEnvelopeID   = errors.New("envelope id is empty")
	ErrEmptyEnvelopeType = errors.New("envelope type is empty")
	ErrEmptyCorrelation  = errors.New("envelope correlation id is empty")
)

// Envelope is the uniform wrapper for every message crossing the broker.
// It is treated as immutable once published.
type Envelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	Timestamp     time.Time       `json:"-"`
	SessionID     string          `json:"-"`
	UserID        string          `json:"-"`
	CorrelationID string          `json:"correlationId"`
	Payload       json.RawMessage `json:"payload"`
}

type wireEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	Timestamp     int64           `json:"timestamp"`
	SessionID     *string         `json:"sessionId"`
	UserID        *string         `json:"userId"`
	CorrelationID string          `json:"correlationId"`
	Payload       json.RawMessage `json:"payload"`
}

// Option customises a new envelope.
type Option func(*Envelope)

func WithSession(sessionID string) Option {
	return func(e *Envelope) { e.SessionID = sessionID }
}

func WithUser(userID string) Option {
	return func(e *Envelope) { e.UserID = userID }
}

func WithCorrelation(correlationID string) Option {
	return func(e *Envelope) { e.CorrelationID = correlationID }
}

func WithTimestamp(ts time.Time) Option {
	return func(e *Envelope) { e.Timestamp = ts }
}

// NewEnvelope encodes payload and stamps a fresh id, timestamp and correlation id
// (unless one is supplied through WithCorrelation).
func NewEnvelope(eventType EventType, payload interface{}, opts ...Option) (Envelope, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	env := Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}
	for _, opt := range opts {
		opt(&env)
	}
	if env.CorrelationID == "" {
		env.CorrelationID = uuid.NewString()
	}
	return env, nil
}

// Derive builds a descendant envelope that keeps the parent's correlation id and session.
func Derive(parent Envelope, eventType EventType, payload interface{}, opts ...Option) (Envelope, error) {
	base := []Option{
		WithCorrelation(parent.CorrelationID),
		WithSession(parent.SessionID),
		WithUser(parent.UserID),
	}
	return NewEnvelope(eventType, payload, append(base, opts...)...)
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("envelope %s: empty payload", e.ID)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("envelope %s: decode %s payload: %w", e.ID, e.Type, err)
	}
	return nil
}

func (e Envelope) Validate() error {
	var errs []error
	if e.ID == "" {
		errs = append(errs, ErrEmptyEnvelopeID)
	}
	if e.Type == "" {
		errs = append(errs, ErrEmptyEnvelopeType)
	}
	if e.CorrelationID == "" {
		errs = append(errs, ErrEmptyCorrelation)
	}
	return errors.Join(errs...)
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	w := wireEnvelope{
		ID:            e.ID,
		Type:          e.Type,
		Timestamp:     e.Timestamp.UnixMilli(),
		CorrelationID: e.CorrelationID,
		Payload:       e.Payload,
	}
	if e.SessionID != "" {
		w.SessionID = &e.SessionID
	}
	if e.UserID != "" {
		w.UserID = &e.UserID
	}
	if w.Payload == nil {
		w.Payload = json.RawMessage("null")
	}
	return json.Marshal(w)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Envelope{
		ID:            w.ID,
		Type:          w.Type,
		Timestamp:     time.UnixMilli(w.Timestamp).UTC(),
		CorrelationID: w.CorrelationID,
		Payload:       w.Payload,
	}
	if w.SessionID != nil {
		e.SessionID = *w.SessionID
	}
	if w.UserID != nil {
		e.UserID = *w.UserID
	}
	return nil
}

func encodePayload(payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, errors.New("payload bytes are not valid JSON")
		}
		return json.RawMessage(p), nil
	default:
		return json.Marshal(payload)
	}
}
