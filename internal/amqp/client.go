package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	applog "fintrack/internal/log"
)

var errDeliveriesClosed = errors.New("delivery channel: connection closed")

// amqpConn and amqpChannel are the parts of the broker session the client
// uses; *amqp091.Connection and *amqp091.Channel satisfy them.
type (
	amqpConn interface {
		IsClosed() bool
		Close() error
	}
	amqpChannel interface {
		PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
		Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
		IsClosed() bool
		Close() error
	}
	dialFunc func(url, exchangeName, queueName string) (amqpConn, amqpChannel, error)
)

type Client struct {
	url          string
	exchangeName string
	queueName    string
	dial         dialFunc

	// mu guards the session and is held across a redial.
	mu      sync.Mutex
	conn    amqpConn
	channel amqpChannel
	closed  bool
	logger  *applog.Logger
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		dial:         dialBroker,
		logger:       applog.FromSlog(slog.Default(), applog.ComponentAMQP),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// connect replaces a dead session. Concurrent callers redial once: whoever
// gets the lock second finds a live session and returns.
func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp091.ErrClosed
	}
	if c.live() {
		return nil
	}
	c.closeSession()

	conn, channel, err := c.dial(c.url, c.exchangeName, c.queueName)
	if err != nil {
		return err
	}
	c.conn, c.channel = conn, channel
	return nil
}

// live must be called with mu held.
func (c *Client) live() bool {
	return c.conn != nil && !c.conn.IsClosed() &&
		c.channel != nil && !c.channel.IsClosed()
}

// closeSession must be called with mu held.
func (c *Client) closeSession() error {
	var err error
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}

func dialBroker(url, exchangeName, queueName string) (amqpConn, amqpChannel, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, exchangeName, queueName); err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return conn, channel, nil
}

func setup(ch *amqp091.Channel, exchangeName, queueName string) error {
	err := ch.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key equals the queue name on a direct exchange.
	if err := ch.QueueBind(queueName, queueName, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (c *Client) currentChannel() (amqpChannel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.live() {
		return nil, amqp091.ErrClosed
	}
	return c.channel, nil
}

// PublishTransactionEvent publishes a persistent transaction event.
func (c *Client) PublishTransactionEvent(ctx context.Context, evt *TransactionEvent) error {
	body, err := evt.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ch, err := c.currentChannel()
	if err != nil {
		// One redial attempt before giving up; the ledger is already committed.
		if rerr := c.connect(); rerr != nil {
			return fmt.Errorf("publish event: %w", rerr)
		}
		if ch, err = c.currentChannel(); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    evt.EventID,
			Type:         string(evt.Kind),
			Timestamp:    evt.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	c.logger.InfoContext(ctx, "Published transaction event",
		applog.FieldEventID, evt.EventID,
		applog.FieldEventKind, string(evt.Kind),
		applog.FieldTransactionID, evt.TransactionID,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// EventHandler processes one decoded event. Returning an error requeues it.
type EventHandler func(ctx context.Context, evt *TransactionEvent) error

// ConsumeTransactionEvents consumes events until ctx is cancelled, redialing
// with exponential backoff when the broker connection drops.
func (c *Client) ConsumeTransactionEvents(ctx context.Context, handler EventHandler) error {
	attempt := 0
	for {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		delay := exponentialBackoff(attempt)
		attempt++
		c.logger.WarnContext(ctx, "AMQP connection lost, reconnecting",
			applog.FieldError, err,
			"attempt", attempt,
			"delay", delay.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			c.logger.WarnContext(ctx, "AMQP reconnect failed", applog.FieldError, err)
			continue
		}
		attempt = 0
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler EventHandler) error {
	ch, err := c.currentChannel()
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming transaction events", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errDeliveriesClosed
			}
			processDelivery(ctx, c.logger, delivery.Body, delivery, handler)
		}
	}
}

// acknowledger is the subset of amqp091.Delivery used to settle a message.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// processDelivery decodes body, runs handler and settles the message:
// undecodable bodies are dropped, handler failures are requeued.
func processDelivery(ctx context.Context, logger *applog.Logger, body []byte, ack acknowledger, handler EventHandler) {
	evt, err := TransactionEventFromJSON(body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to decode transaction event", applog.FieldError, err)
		_ = ack.Nack(false, false)
		return
	}

	if err := handler(ctx, evt); err != nil {
		logger.ErrorContext(ctx, "Failed to handle transaction event",
			applog.FieldError, err,
			applog.FieldEventID, evt.EventID,
			applog.FieldTransactionID, evt.TransactionID)
		_ = ack.Nack(false, true)
		return
	}

	_ = ack.Ack(false)
	logger.DebugContext(ctx, "Processed transaction event",
		applog.FieldEventID, evt.EventID,
		applog.FieldEventKind, string(evt.Kind))
}

// Close shuts the session down; later redials fail with amqp091.ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.closeSession()
}
