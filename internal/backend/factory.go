package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
	"fintrack/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: applog.FromSlog(logger, applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []ledger.Option{ledger.WithLogger(f.logger.WithComponent(applog.ComponentLedger))}
	var closers []func() error

	// AMQP is optional: a broker outage at startup degrades to no events.
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", applog.FieldError, err)
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			opts = append(opts, ledger.WithObserver(amqp.NewPublisher(client)))
			closers = append(closers, client.Close)
		}
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(ctx, config, opts)
	case MemoryBackend:
		res, err = f.createMemoryBackend(ctx, opts)
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}

	if res.Cleanup != nil {
		closers = append([]func() error{res.Cleanup}, closers...)
	}
	res.Cleanup = func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}
	return res, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config, opts []ledger.Option) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(ctx, config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	l := ledger.New(append(opts, ledger.WithJournal(repo))...)
	if err := l.Restore(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("restore ledger: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"restored", l.Len())

	return &BackendResult{
		Ledger:  l,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, opts []ledger.Option) (*BackendResult, error) {
	f.logger.InfoContext(ctx, "Initialized memory backend")
	return &BackendResult{Ledger: ledger.New(opts...)}, nil
}
