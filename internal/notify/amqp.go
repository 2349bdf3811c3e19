// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"

	"github.com/usersflow/usersflow/internal/auth"
)

// DefaultQueue is the queue the mail worker consumes.
const DefaultQueue = "usersflow.recovery"

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes recovery notices as persistent JSON messages to a
// durable queue on the default exchange.
type AMQPPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    channel
	queue string
	now   func() time.Time
}

// NewAMQPPublisher dials url, opens a channel and declares queue.
func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	if url == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("amqp url is required")
	}
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, oops.Code("NOTIFY_CONNECT_FAILED").With("operation", "dial").Wrap(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, oops.Code("NOTIFY_CONNECT_FAILED").With("operation", "open channel").Wrap(err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, oops.Code("NOTIFY_CONNECT_FAILED").
			With("operation", "declare queue").
			With("queue", queue).
			Wrap(err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, queue: queue, now: time.Now}, nil
}

// NotifyRecovery implements auth.RecoveryNotifier.
func (p *AMQPPublisher) NotifyRecovery(ctx context.Context, notice auth.RecoveryNotice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return oops.Code("NOTIFY_ENCODE_FAILED").Wrap(err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Type:         "account.recovery",
		Body:         body,
	}

	// Channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return oops.Code("NOTIFY_PUBLISH_FAILED").
			With("queue", p.queue).
			With("account_id", notice.AccountID).
			Wrap(err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return oops.Code("NOTIFY_CLOSE_FAILED").Wrap(errors.Join(errs...))
	}
	return nil
}

var _ auth.RecoveryNotifier = (*AMQPPublisher)(nil)
