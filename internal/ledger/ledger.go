// Package ledger holds the authoritative, in-process set of transactions and
// derives aggregates from it.
//
// A Ledger is constructed once per process and handed to the transport layer.
// Mutations are serialized by a single lock; readers share a read lock so they
// never observe a half-applied Add or Remove. Persistence, when configured, is
// a write-through Journal consulted inside the same critical section.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

// ErrJournal marks failures of the persistence collaborator. It is never
// returned for validation problems.
var ErrJournal = errors.New("ledger journal")

// Journal persists committed mutations. Implementations must be safe to call
// while the ledger holds its write lock, so they must not call back into it.
type Journal interface {
	Insert(ctx context.Context, t core.Transaction) error
	Delete(ctx context.Context, id int64) (bool, error)
	LoadAll(ctx context.Context) ([]core.Transaction, error)
}

// Observer is told about mutations after they are committed, one call at a
// time and in commit order. It cannot veto or roll back a mutation and must
// not call back into the ledger.
type Observer interface {
	TransactionAdded(ctx context.Context, t core.Transaction)
	TransactionRemoved(ctx context.Context, t core.Transaction)
}

// Snapshot is a consistent view of the ledger taken under one read lock.
type Snapshot struct {
	Transactions []core.Transaction
	Aggregates   core.Aggregates
	ByCategory   []core.CategoryAmount
}

type Ledger struct {
	mu     sync.RWMutex
	items  []core.Transaction
	lastID int64
	// totals tracks per-type sums so Add can refuse amounts that would
	// overflow them. Guarded by mu.
	totals map[core.TransactionType]core.Money

	// notifyMu is taken before mu is released, which hands observers the
	// mutations in the order they were committed.
	notifyMu sync.Mutex

	journal   Journal
	observers []Observer
	now       func() time.Time
	logger    *applog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithJournal makes every Add and Remove write through j before it is applied.
func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

// WithObserver registers o for post-commit notifications.
func WithObserver(o Observer) Option {
	return func(l *Ledger) {
		if o != nil {
			l.observers = append(l.observers, o)
		}
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger used for mutation events.
func WithLogger(logger *applog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New returns an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{now: time.Now, totals: make(map[core.TransactionType]core.Money)}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = applog.FromSlog(slog.Default(), applog.ComponentLedger)
	}
	return l
}

// Restore loads persisted transactions from the journal. It must be called
// before the ledger is shared and only on an empty ledger.
func (l *Ledger) Restore(ctx context.Context) error {
	if l.journal == nil {
		return nil
	}
	loaded, err := l.journal.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: load transactions: %w", ErrJournal, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) > 0 || l.lastID > 0 {
		return errors.New("restore into a non-empty ledger")
	}

	seen := make(map[int64]struct{}, len(loaded))
	totals := make(map[core.TransactionType]core.Money)
	for _, t := range loaded {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("restore transaction %d: %w", t.ID, err)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("restore transaction %d: duplicate id", t.ID)
		}
		seen[t.ID] = struct{}{}
		sum, ok := totals[t.Type].CheckedAdd(t.Amount)
		if !ok {
			return fmt.Errorf("restore transaction %d: %w", t.ID, core.ErrTotalOverflow)
		}
		totals[t.Type] = sum
	}
	items := slices.Clone(loaded)
	slices.SortFunc(items, func(a, b core.Transaction) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	l.items = items
	l.totals = totals
	if n := len(items); n > 0 {
		l.lastID = items[n-1].ID
	}

	l.logger.InfoContext(ctx, "Ledger restored from journal",
		"count", len(items),
		applog.FieldLastID, l.lastID)
	return nil
}

// List returns all transactions in insertion order. The slice is a copy.
func (l *Ledger) List() []core.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.items)
}

// Get returns the transaction with the given id.
func (l *Ledger) Get(id int64) (core.Transaction, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.indexOf(id); i >= 0 {
		return l.items[i], true
	}
	return core.Transaction{}, false
}

// Len returns the number of stored transactions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Add validates in, assigns the next id and stores the transaction. On a
// *core.ValidationError or a journal failure the ledger is unchanged, id
// counter included. An amount that would overflow its type's running total is
// rejected as a validation error on the amount field.
func (l *Ledger) Add(ctx context.Context, in core.NewTransactionInput) (core.Transaction, error) {
	draft, err := in.Validate()
	if err != nil {
		return core.Transaction{}, err
	}

	l.mu.Lock()
	total, ok := l.totals[draft.Type].CheckedAdd(draft.Amount)
	if !ok {
		l.mu.Unlock()
		return core.Transaction{}, core.NewValidationError("amount", core.ErrTotalOverflow)
	}
	t := core.Transaction{
		ID:        l.lastID + 1,
		Title:     draft.Title,
		Amount:    draft.Amount,
		Category:  draft.Category,
		Type:      draft.Type,
		CreatedAt: l.now().UTC(),
	}
	if l.journal != nil {
		if err := l.journal.Insert(ctx, t); err != nil {
			l.mu.Unlock()
			return core.Transaction{}, fmt.Errorf("%w: insert transaction %d: %w", ErrJournal, t.ID, err)
		}
	}
	l.lastID = t.ID
	l.items = append(l.items, t)
	l.totals[t.Type] = total
	l.notifyMu.Lock()
	l.mu.Unlock()

	l.logger.DebugContext(ctx, "Transaction added",
		applog.NewFields().WithTransaction(t.ID, t.Amount.Cents, string(t.Type), t.Category).WithOperation(applog.OpCreate).ToSlice()...)

	l.notify(func(o Observer) { o.TransactionAdded(ctx, t) })
	return t, nil
}

// Remove deletes the transaction with the given id. Removing an unknown id is
// a no-op that reports false, so callers may retry freely.
func (l *Ledger) Remove(ctx context.Context, id int64) (bool, error) {
	l.mu.Lock()
	i := l.indexOf(id)
	if i < 0 {
		l.mu.Unlock()
		return false, nil
	}
	t := l.items[i]
	if l.journal != nil {
		if _, err := l.journal.Delete(ctx, id); err != nil {
			l.mu.Unlock()
			return false, fmt.Errorf("%w: delete transaction %d: %w", ErrJournal, id, err)
		}
	}
	l.items = slices.Delete(l.items, i, i+1)
	l.totals[t.Type] = l.totals[t.Type].Sub(t.Amount)
	l.notifyMu.Lock()
	l.mu.Unlock()

	l.logger.DebugContext(ctx, "Transaction removed",
		applog.NewFields().WithTransaction(t.ID, t.Amount.Cents, string(t.Type), t.Category).WithOperation(applog.OpDelete).ToSlice()...)

	l.notify(func(o Observer) { o.TransactionRemoved(ctx, t) })
	return true, nil
}

// notify must be called with notifyMu held; it releases it.
func (l *Ledger) notify(call func(Observer)) {
	defer l.notifyMu.Unlock()
	for _, o := range l.observers {
		call(o)
	}
}

// Aggregates computes income, expenses and balance from the current set.
func (l *Ledger) Aggregates() core.Aggregates {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return core.Summarize(l.items)
}

// Breakdown returns per-category totals for the current set.
func (l *Ledger) Breakdown() []core.CategoryAmount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return core.BreakdownByCategory(l.items)
}

// Snapshot returns transactions and everything derived from them, all taken
// from the same state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		Transactions: slices.Clone(l.items),
		Aggregates:   core.Summarize(l.items),
		ByCategory:   core.BreakdownByCategory(l.items),
	}
}

// CheckJournal verifies the journal is reachable and, when it can total
// itself, that its totals match the in-memory set. It holds the read lock so
// no mutation lands between the two computations. Without a journal it is a
// no-op.
func (l *Ledger) CheckJournal(ctx context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.journal == nil {
		return nil
	}
	if p, ok := l.journal.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%w: ping: %w", ErrJournal, err)
		}
	}
	s, ok := l.journal.(interface {
		SumByType(context.Context) (core.Aggregates, error)
	})
	if !ok {
		return nil
	}
	persisted, err := s.SumByType(ctx)
	if err != nil {
		return fmt.Errorf("%w: sum: %w", ErrJournal, err)
	}
	if mem := core.Summarize(l.items); persisted != mem {
		return fmt.Errorf("%w: totals drifted: journal income=%s expenses=%s, memory income=%s expenses=%s",
			ErrJournal, persisted.TotalIncome, persisted.TotalExpenses, mem.TotalIncome, mem.TotalExpenses)
	}
	return nil
}

// indexOf must be called with l.mu held. Ids are strictly increasing in
// l.items, so a binary search suffices.
func (l *Ledger) indexOf(id int64) int {
	i, found := slices.BinarySearchFunc(l.items, id, func(t core.Transaction, id int64) int {
		switch {
		case t.ID < id:
			return -1
		case t.ID > id:
			return 1
		}
		return 0
	})
	if !found {
		return -1
	}
	return i
}
