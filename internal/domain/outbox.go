package domain

import (
	"encoding/json"
	"time"
)

// OutboxMessage is a row in event_outbox, written in the same transaction
// as the aggregate change it records and delivered at-least-once by the
// publisher (spec §4.D/§4.H).
type OutboxMessage struct {
	ID           string
	EventType    string
	AggregateId  string
	Payload      []byte
	CreatedAt    time.Time
	ProcessingAt *time.Time
	PublishedAt  *time.Time
	RetryCount   int
	LastError    string
}

// NewOutboxMessage builds a row from a domain event, canonically JSON
// encoded, per spec §3 ("payload = canonical JSON").
func NewOutboxMessage(id string, evt Event) (*OutboxMessage, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, &OutboxPersistenceErr{Cause: err}
	}
	return &OutboxMessage{
		ID:          id,
		EventType:   evt.EventType(),
		AggregateId: evt.AggregateId(),
		Payload:     payload,
		CreatedAt:   evt.OccurredAt(),
	}, nil
}

// OutboxPersistenceErr wraps a marshal/storage failure for an outbox row.
type OutboxPersistenceErr struct {
	Cause error
}

func (e *OutboxPersistenceErr) Error() string { return "outbox persistence: " + e.Cause.Error() }
func (e *OutboxPersistenceErr) Unwrap() error  { return e.Cause }
func (e *OutboxPersistenceErr) Is(target error) bool { return target == ErrOutboxPersistence }

// CanRetry reports whether the row is eligible for another delivery
// attempt given maxRetries (spec default 3).
func (m *OutboxMessage) CanRetry(maxRetries int) bool {
	return m.PublishedAt == nil && m.RetryCount < maxRetries
}
