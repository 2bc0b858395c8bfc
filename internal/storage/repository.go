package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"

	_ "modernc.org/sqlite"
)

var _ ledger.Journal = (*SQLiteRepository)(nil)

// SQLiteRepository persists ledger transactions in a single SQLite table
// keyed by the ledger-assigned id.
type SQLiteRepository struct {
	db     *sql.DB
	logger *applog.Logger
}

func NewSQLiteRepository(ctx context.Context, dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// The ledger already serializes writes; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{
		db:     db,
		logger: applog.FromSlog(slog.Default(), applog.ComponentStorage),
	}
	repo.logger.InfoContext(ctx, "SQLite journal ready", "path", dbPath, "schema_version", version)
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Insert implements ledger.Journal
func (r *SQLiteRepository) Insert(ctx context.Context, t core.Transaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (id, title, amount_cents, category, type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Amount.Cents, t.Category, string(t.Type), t.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	r.logger.DebugContext(ctx, "Transaction saved to SQLite",
		applog.FieldTransactionID, t.ID,
		applog.FieldAmountCents, t.Amount.Cents,
		applog.FieldTxType, string(t.Type))
	return nil
}

// Delete implements ledger.Journal
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete transaction rows affected: %w", err)
	}
	return n > 0, nil
}

// LoadAll implements ledger.Journal
func (r *SQLiteRepository) LoadAll(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, amount_cents, category, type, created_at
		 FROM transactions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t         core.Transaction
			typ       string
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Amount.Cents, &t.Category, &typ, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = core.TransactionType(typ)
		t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at of transaction %d: %w", t.ID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// SumByType returns the persisted aggregates, computed by SQLite in cents.
// Used to check that the journal agrees with the in-memory ledger.
func (r *SQLiteRepository) SumByType(ctx context.Context) (core.Aggregates, error) {
	var income, expenses int64
	err := r.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN type = 'income'  THEN amount_cents END), 0),
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents END), 0)
		 FROM transactions`).Scan(&income, &expenses)
	if err != nil {
		return core.Aggregates{}, fmt.Errorf("sum transactions: %w", err)
	}
	return core.Aggregates{
		TotalIncome:   core.Money{Cents: income},
		TotalExpenses: core.Money{Cents: expenses},
		Balance:       core.Money{Cents: income - expenses},
	}, nil
}
