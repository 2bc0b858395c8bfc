package amqp

import (
	"context"
	"log/slog"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
)

var _ ledger.Observer = (*Publisher)(nil)

// EventPublisher is satisfied by *Client.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, evt *TransactionEvent) error
}

// Publisher turns committed ledger mutations into transaction events.
// Publish failures are logged and dropped: the ledger stays authoritative.
type Publisher struct {
	pub    EventPublisher
	logger *applog.Logger
}

func NewPublisher(pub EventPublisher) *Publisher {
	return &Publisher{
		pub:    pub,
		logger: applog.FromSlog(slog.Default(), applog.ComponentAMQP),
	}
}

func (p *Publisher) TransactionAdded(ctx context.Context, t core.Transaction) {
	p.publish(ctx, NewTransactionEvent(EventCreated, t))
}

func (p *Publisher) TransactionRemoved(ctx context.Context, t core.Transaction) {
	p.publish(ctx, NewTransactionEvent(EventDeleted, t))
}

func (p *Publisher) publish(ctx context.Context, evt *TransactionEvent) {
	if p.pub == nil {
		p.logger.WarnContext(ctx, "AMQP client not available, skipping transaction event",
			applog.FieldTransactionID, evt.TransactionID)
		return
	}
	// The request may finish before the broker answers.
	if err := p.pub.PublishTransactionEvent(context.WithoutCancel(ctx), evt); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish transaction event",
			applog.FieldError, err,
			applog.FieldEventKind, string(evt.Kind),
			applog.FieldTransactionID, evt.TransactionID)
	}
}
