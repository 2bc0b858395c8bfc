package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{10, 30 * time.Second}, // capped at 30s
		{64, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			result := exponentialBackoff(tt.attempt)
			if result != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, result, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection closed", errors.New("connection closed"), true},
		{"unexpected EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"amqp closed", fmt.Errorf("consume: %w", amqp091.ErrClosed), true},
		{"deliveries closed", errDeliveriesClosed, true},
		{"other error", errors.New("some other error"), false},
		{"validation error", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func sampleTransaction() core.Transaction {
	return core.Transaction{
		ID:        7,
		Title:     "Groceries",
		Amount:    core.Money{Cents: 4210},
		Category:  "Food",
		Type:      core.Expense,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTransactionEventRoundTrip(t *testing.T) {
	evt := NewTransactionEvent(EventCreated, sampleTransaction())
	if evt.EventID == "" {
		t.Fatal("expected event id")
	}

	data, err := evt.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	got, err := TransactionEventFromJSON(data)
	if err != nil {
		t.Fatalf("TransactionEventFromJSON: %v", err)
	}
	if got.EventID != evt.EventID || got.Kind != EventCreated {
		t.Fatalf("unexpected event: %+v", got)
	}
	tx, want := got.Transaction(), sampleTransaction()
	if tx.ID != want.ID || tx.Title != want.Title || tx.Amount != want.Amount ||
		tx.Category != want.Category || tx.Type != want.Type || !tx.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("transaction mismatch: got %+v", tx)
	}
}

func TestTransactionEventFromJSONRejects(t *testing.T) {
	cases := map[string]string{
		"garbage":      `not json`,
		"unknown kind": `{"event_id":"6f1c1d1e-5b1a-4c59-9a57-0c8e0f6b1a11","kind":"transaction.updated","transaction_id":1}`,
		"missing id":   `{"event_id":"6f1c1d1e-5b1a-4c59-9a57-0c8e0f6b1a11","kind":"transaction.created"}`,
		"bad event id": `{"event_id":"nope","kind":"transaction.deleted","transaction_id":1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := TransactionEventFromJSON([]byte(body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }
func (f *fakeAck) Nack(_ bool, requeue bool) error {
	f.nacked, f.requeue = true, requeue
	return nil
}

func TestProcessDelivery(t *testing.T) {
	logger := applog.FromSlog(slog.Default(), applog.ComponentAMQP)
	body, err := NewTransactionEvent(EventDeleted, sampleTransaction()).ToJSON()
	if err != nil {
		t.Fatal(err)
	}

	t.Run("ack on success", func(t *testing.T) {
		ack := &fakeAck{}
		var seen *TransactionEvent
		processDelivery(context.Background(), logger, body, ack, func(_ context.Context, evt *TransactionEvent) error {
			seen = evt
			return nil
		})
		if !ack.acked || ack.nacked {
			t.Fatalf("expected ack, got %+v", ack)
		}
		if seen == nil || seen.Kind != EventDeleted {
			t.Fatalf("handler saw %+v", seen)
		}
	})

	t.Run("requeue on handler error", func(t *testing.T) {
		ack := &fakeAck{}
		processDelivery(context.Background(), logger, body, ack, func(context.Context, *TransactionEvent) error {
			return errors.New("sheet unavailable")
		})
		if !ack.nacked || !ack.requeue {
			t.Fatalf("expected nack with requeue, got %+v", ack)
		}
	})

	t.Run("drop undecodable body", func(t *testing.T) {
		ack := &fakeAck{}
		called := false
		processDelivery(context.Background(), logger, []byte("{"), ack, func(context.Context, *TransactionEvent) error {
			called = true
			return nil
		})
		if called {
			t.Fatal("handler must not run")
		}
		if !ack.nacked || ack.requeue {
			t.Fatalf("expected nack without requeue, got %+v", ack)
		}
	})
}

type recordingPublisher struct {
	events []*TransactionEvent
	err    error
}

func (r *recordingPublisher) PublishTransactionEvent(_ context.Context, evt *TransactionEvent) error {
	r.events = append(r.events, evt)
	return r.err
}

func TestPublisherObserver(t *testing.T) {
	rec := &recordingPublisher{}
	p := NewPublisher(rec)
	tx := sampleTransaction()

	p.TransactionAdded(context.Background(), tx)
	p.TransactionRemoved(context.Background(), tx)

	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	if rec.events[0].Kind != EventCreated || rec.events[1].Kind != EventDeleted {
		t.Fatalf("unexpected kinds: %s, %s", rec.events[0].Kind, rec.events[1].Kind)
	}
	if rec.events[0].EventID == rec.events[1].EventID {
		t.Fatal("event ids must differ")
	}

	// Publish failures are swallowed.
	rec.err = errors.New("broker down")
	p.TransactionAdded(context.Background(), tx)

	// A nil client only logs.
	NewPublisher(nil).TransactionAdded(context.Background(), tx)
}

type fakeSession struct {
	mu     sync.Mutex
	closed bool
	closes int
}

func (f *fakeSession) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closes++
	return nil
}

func (f *fakeSession) PublishWithContext(context.Context, string, string, bool, bool, amqp091.Publishing) error {
	return nil
}

func (f *fakeSession) Consume(string, string, bool, bool, bool, bool, amqp091.Table) (<-chan amqp091.Delivery, error) {
	return nil, amqp091.ErrClosed
}

func TestConcurrentRedialReplacesSessionOnce(t *testing.T) {
	staleConn, staleChannel := &fakeSession{}, &fakeSession{}
	staleChannel.closed = true

	var dials atomic.Int32
	fresh := &fakeSession{}
	c := &Client{
		conn:    staleConn,
		channel: staleChannel,
		logger:  applog.FromSlog(slog.Default(), applog.ComponentAMQP),
		dial: func(string, string, string) (amqpConn, amqpChannel, error) {
			dials.Add(1)
			time.Sleep(10 * time.Millisecond)
			return fresh, fresh, nil
		},
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.connect(); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if n := dials.Load(); n != 1 {
		t.Fatalf("dialed %d times, want 1", n)
	}
	if staleConn.closes != 1 || staleChannel.closes != 1 {
		t.Fatalf("stale session not closed exactly once: conn=%d channel=%d", staleConn.closes, staleChannel.closes)
	}
	ch, err := c.currentChannel()
	if err != nil || ch != amqpChannel(fresh) {
		t.Fatalf("expected the fresh channel, got %v %v", ch, err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.connect(); !errors.Is(err, amqp091.ErrClosed) {
		t.Fatalf("redial after Close: got %v, want ErrClosed", err)
	}
	if dials.Load() != 1 {
		t.Fatal("closed client dialed again")
	}
}

func TestRedialFailureLeavesNoSession(t *testing.T) {
	stale := &fakeSession{closed: true}
	c := &Client{
		conn:    stale,
		channel: stale,
		dial: func(string, string, string) (amqpConn, amqpChannel, error) {
			return nil, nil, errors.New("dial AMQP: connection refused")
		},
	}
	if err := c.connect(); err == nil {
		t.Fatal("expected dial error")
	}
	if c.conn != nil || c.channel != nil {
		t.Fatal("stale session kept after failed redial")
	}
	if _, err := c.currentChannel(); !errors.Is(err, amqp091.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
