package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// EventKind names what happened to a transaction.
type EventKind string

const (
	EventCreated EventKind = "transaction.created"
	EventDeleted EventKind = "transaction.deleted"
)

// TransactionEvent is published after every committed ledger mutation. It
// carries the full transaction so consumers never read back from the ledger.
type TransactionEvent struct {
	EventID       string    `json:"event_id"`
	Kind          EventKind `json:"kind"`
	TransactionID int64     `json:"transaction_id"`
	Title         string    `json:"title"`
	AmountCents   int64     `json:"amount_cents"`
	Category      string    `json:"category"`
	Type          string    `json:"type"`
	CreatedAt     time.Time `json:"created_at"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionEvent builds an event with a fresh random id.
func NewTransactionEvent(kind EventKind, t core.Transaction) *TransactionEvent {
	return &TransactionEvent{
		EventID:       uuid.NewString(),
		Kind:          kind,
		TransactionID: t.ID,
		Title:         t.Title,
		AmountCents:   t.Amount.Cents,
		Category:      t.Category,
		Type:          string(t.Type),
		CreatedAt:     t.CreatedAt,
		Timestamp:     time.Now().UTC(),
	}
}

// Transaction rebuilds the transaction carried by the event.
func (e *TransactionEvent) Transaction() core.Transaction {
	return core.Transaction{
		ID:        e.TransactionID,
		Title:     e.Title,
		Amount:    core.Money{Cents: e.AmountCents},
		Category:  e.Category,
		Type:      core.TransactionType(e.Type),
		CreatedAt: e.CreatedAt,
	}
}

// ToJSON converts the event to JSON bytes
func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and sanity-checks an event.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var evt TransactionEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	switch evt.Kind {
	case EventCreated, EventDeleted:
	default:
		return nil, fmt.Errorf("unknown event kind %q", evt.Kind)
	}
	if evt.TransactionID <= 0 {
		return nil, fmt.Errorf("event %s has no transaction id", evt.EventID)
	}
	if _, err := uuid.Parse(evt.EventID); err != nil {
		return nil, fmt.Errorf("event id %q: %w", evt.EventID, err)
	}
	return &evt, nil
}
