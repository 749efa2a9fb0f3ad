// Package queue provides an at-least-once message queue abstraction and a
// polling consumer used by the checker and alert workers.
package queue

import (
	"context"
	"time"
)

// Topics used by the service.
const (
	TopicChecks = "checks"
	TopicAlerts = "alerts"
)

// Publisher enqueues messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Receiver hands out messages for processing. A received message stays
// invisible to other receivers until it is acked, nacked or its visibility
// timeout expires.
type Receiver interface {
	Receive(ctx context.Context, topic string, max int) ([]*Message, error)
}

// Broker is a full queue backend.
type Broker interface {
	Publisher
	Receiver
	Close() error
}

// Acker settles a single delivery.
type Acker interface {
	Ack(ctx context.Context) error
	// Nack makes the message available again after delay.
	Nack(ctx context.Context, reason error, delay time.Duration) error
	// Term stops redelivery of the message.
	Term(ctx context.Context, reason error) error
}

// Message is one delivery of a queued payload.
type Message struct {
	ID      string
	Topic   string
	Body    []byte
	Attempt int // 1 on first delivery

	acker Acker
}

// NewMessage creates a delivery settled through acker.
func NewMessage(id, topic string, body []byte, attempt int, acker Acker) *Message {
	return &Message{
		ID:      id,
		Topic:   topic,
		Body:    body,
		Attempt: attempt,
		acker:   acker,
	}
}

// Ack removes the message from the queue.
func (m *Message) Ack(ctx context.Context) error {
	return m.acker.Ack(ctx)
}

// Nack schedules redelivery after delay.
func (m *Message) Nack(ctx context.Context, reason error, delay time.Duration) error {
	return m.acker.Nack(ctx, reason, delay)
}

// Term gives up on the message.
func (m *Message) Term(ctx context.Context, reason error) error {
	return m.acker.Term(ctx, reason)
}
