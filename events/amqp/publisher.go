// Package amqpevents publishes recovery events to RabbitMQ.
package amqpevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/recoverykit/core"
)

// DefaultQueue receives events when no queue name is configured.
const DefaultQueue = "recovery.events"

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements core.EventLogger on a durable queue. One connection
// and channel are shared; the channel is reopened after a failed publish.
type Publisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    channel
	queue string
	log   logrus.FieldLogger
}

var _ core.EventLogger = (*Publisher)(nil)

// Dial connects to url and declares queue (durable).
func Dial(url, queue string, l logrus.FieldLogger) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	if l == nil {
		l = logrus.StandardLogger()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	p := &Publisher{conn: conn, queue: queue, log: l}
	if err := p.openChannel(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		p.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.ch = ch
	return nil
}

func (p *Publisher) LogRecoveryEvent(ctx context.Context, e core.RecoveryEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ts := e.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ts,
		Type:         string(e.Event),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return errors.New("rabbitmq publisher closed")
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, pub)
	if err == nil || p.conn == nil || p.conn.IsClosed() {
		return err
	}
	p.log.WithError(err).Warn("rabbitmq publish failed, reopening channel")
	_ = p.ch.Close()
	if reopenErr := p.openChannel(); reopenErr != nil {
		p.ch = nil
		return errors.Join(err, reopenErr)
	}
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, pub)
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}
