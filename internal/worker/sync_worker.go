package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/sheets"
)

const defaultDedupeSize = 1024

// TransactionSource lists persisted transactions; *storage.SQLiteRepository
// satisfies it.
type TransactionSource interface {
	LoadAll(ctx context.Context) ([]core.Transaction, error)
}

// SyncWorker applies transaction events to a spreadsheet mirror.
type SyncWorker struct {
	mirror sheets.TransactionMirror
	logger *applog.Logger

	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string
	capacity int
}

func NewSyncWorker(mirror sheets.TransactionMirror, dedupeSize int) *SyncWorker {
	if dedupeSize <= 0 {
		dedupeSize = defaultDedupeSize
	}
	return &SyncWorker{
		mirror:   mirror,
		logger:   applog.FromSlog(slog.Default(), applog.ComponentWorker),
		seen:     make(map[string]struct{}, dedupeSize),
		order:    make([]string, 0, dedupeSize),
		capacity: dedupeSize,
	}
}

// HandleEvent processes a single transaction event from AMQP. Redelivered
// events are skipped once they have been applied.
func (w *SyncWorker) HandleEvent(ctx context.Context, evt *amqp.TransactionEvent) error {
	if w.alreadyHandled(evt.EventID) {
		w.logger.DebugContext(ctx, "Skipping duplicate event",
			applog.FieldEventID, evt.EventID,
			applog.FieldTransactionID, evt.TransactionID)
		return nil
	}

	w.logger.InfoContext(ctx, "Processing transaction event",
		applog.FieldEventID, evt.EventID,
		applog.FieldEventKind, string(evt.Kind),
		applog.FieldTransactionID, evt.TransactionID)

	switch evt.Kind {
	case amqp.EventCreated:
		ref, err := w.mirror.Append(ctx, evt.Transaction())
		if err != nil {
			return fmt.Errorf("append transaction %d to mirror: %w", evt.TransactionID, err)
		}
		w.logger.InfoContext(ctx, "Successfully synced transaction",
			applog.FieldTransactionID, evt.TransactionID,
			applog.FieldMirrorRef, ref,
			applog.FieldAmountCents, evt.AmountCents)
	case amqp.EventDeleted:
		removed, err := w.mirror.Delete(ctx, evt.TransactionID)
		if err != nil {
			return fmt.Errorf("delete transaction %d from mirror: %w", evt.TransactionID, err)
		}
		w.logger.InfoContext(ctx, "Processed delete",
			applog.FieldTransactionID, evt.TransactionID,
			"removed", removed)
	default:
		return fmt.Errorf("unknown event kind %q", evt.Kind)
	}

	w.markHandled(evt.EventID)
	return nil
}

// Reconcile makes the mirror match the persisted transactions: missing rows
// are appended and mirrored ids that are no longer persisted are deleted.
// It is safe to run at every startup to recover from events lost while the
// worker was down.
func (w *SyncWorker) Reconcile(ctx context.Context, src TransactionSource) error {
	txs, err := src.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load transactions for reconcile: %w", err)
	}

	persisted := make(map[int64]struct{}, len(txs))
	var failed, ops int
	for _, t := range txs {
		if err := ctx.Err(); err != nil {
			return err
		}
		persisted[t.ID] = struct{}{}
		ops++
		if _, err := w.mirror.Append(ctx, t); err != nil {
			w.logger.ErrorContext(ctx, "Failed to reconcile transaction",
				applog.FieldTransactionID, t.ID,
				applog.FieldError, err)
			failed++
		}
	}

	mirrored, err := w.mirror.IDs(ctx)
	if err != nil {
		return fmt.Errorf("list mirrored transactions: %w", err)
	}
	var removed int
	for _, id := range mirrored {
		if _, ok := persisted[id]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		ops++
		if _, err := w.mirror.Delete(ctx, id); err != nil {
			w.logger.ErrorContext(ctx, "Failed to remove stale mirror row",
				applog.FieldTransactionID, id,
				applog.FieldError, err)
			failed++
			continue
		}
		removed++
	}

	w.logger.InfoContext(ctx, "Startup reconcile completed",
		"total", len(txs),
		"removed", removed,
		"errors", failed)
	if failed > 0 {
		return fmt.Errorf("reconcile: %d of %d mirror operations failed", failed, ops)
	}
	return nil
}

func (w *SyncWorker) alreadyHandled(eventID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[eventID]
	return ok
}

// markHandled records eventID, evicting the oldest entry when full.
func (w *SyncWorker) markHandled(eventID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[eventID]; ok {
		return
	}
	if len(w.order) >= w.capacity {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.seen, oldest)
	}
	w.seen[eventID] = struct{}{}
	w.order = append(w.order, eventID)
}
