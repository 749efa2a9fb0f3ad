package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
	"github.com/go-playground/validator/v10"
)

// Handler processes one message. A returned error causes redelivery unless
// it is marked non-retryable.
type Handler func(ctx context.Context, msg *Message) error

// ConsumerConfig contains consumer configuration.
type ConsumerConfig struct {
	Topic             string
	BatchSize         int
	PollInterval      time.Duration
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	NumWorkers        int
	// HandlerTimeout bounds a single handler call. It must stay below the
	// broker's visibility window or the message is handed out again while
	// still being processed. Zero means no bound.
	HandlerTimeout time.Duration
}

// DefaultConsumerConfig returns default consumer configuration.
func DefaultConsumerConfig(topic string) ConsumerConfig {
	return ConsumerConfig{
		Topic:             topic,
		BatchSize:         20,
		PollInterval:      1 * time.Second,
		MaxAttempts:       5,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        5 * time.Minute,
		BackoffMultiplier: 2.0,
		NumWorkers:        4,
		HandlerTimeout:    45 * time.Second,
	}
}

// Consumer polls a topic and runs a handler for each message.
type Consumer struct {
	config   ConsumerConfig
	receiver Receiver
	handler  Handler

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConsumer creates a new consumer.
func NewConsumer(config ConsumerConfig, receiver Receiver, handler Handler) *Consumer {
	return &Consumer{
		config:   config,
		receiver: receiver,
		handler:  handler,
		stopCh:   make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (c *Consumer) Start(ctx context.Context) {
	slog.Info("starting queue consumer",
		"topic", c.config.Topic,
		"workers", c.config.NumWorkers,
		"batch_size", c.config.BatchSize,
		"poll_interval", c.config.PollInterval,
	)

	for i := 0; i < c.config.NumWorkers; i++ {
		c.wg.Add(1)
		go c.run(ctx, i)
	}
}

// Stop gracefully stops all workers.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	slog.Info("queue consumer stopped", "topic", c.config.Topic)
}

func (c *Consumer) run(ctx context.Context, workerID int) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			// Drain without waiting for the next tick while messages keep coming.
			for c.processBatch(ctx, workerID) == c.config.BatchSize {
				select {
				case <-ctx.Done():
					return
				case <-c.stopCh:
					return
				default:
				}
			}
		}
	}
}

func (c *Consumer) processBatch(ctx context.Context, workerID int) int {
	msgs, err := c.receiver.Receive(ctx, c.config.Topic, c.config.BatchSize)
	if err != nil {
		slog.Error("failed to receive messages", "topic", c.config.Topic, "worker", workerID, "error", err)
		return 0
	}

	if len(msgs) == 0 {
		return 0
	}

	slog.Debug("processing messages", "topic", c.config.Topic, "worker", workerID, "count", len(msgs))

	// Every message of a batch shares one visibility deadline, so the batch
	// is handled concurrently rather than one message after another.
	var wg sync.WaitGroup
	for _, msg := range msgs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.processMessage(ctx, msg)
		}()
	}
	wg.Wait()
	return len(msgs)
}

func (c *Consumer) processMessage(ctx context.Context, msg *Message) {
	ctx, _ = ctxlog.With(ctx, "topic", c.config.Topic, "message_id", msg.ID, "attempt", msg.Attempt)

	start := time.Now()
	err := c.handle(ctx, msg)
	recordHandleDuration(c.config.Topic, time.Since(start))

	if err != nil {
		c.handleError(ctx, msg, err)
		return
	}

	if err := msg.Ack(ctx); err != nil {
		ctxlog.FromContext(ctx).Error("failed to ack message", "error", err)
		return
	}
	recordProcessed(c.config.Topic, "ack")
}

func (c *Consumer) handle(ctx context.Context, msg *Message) error {
	if c.config.HandlerTimeout <= 0 {
		return c.handler(ctx, msg)
	}
	hctx, cancel := context.WithTimeout(ctx, c.config.HandlerTimeout)
	defer cancel()
	return c.handler(hctx, msg)
}

func (c *Consumer) handleError(ctx context.Context, msg *Message, err error) {
	logger := ctxlog.FromContext(ctx)
	logger.Warn("message handler failed", "max_attempts", c.config.MaxAttempts, "error", err)

	if !isRetryable(err) {
		if termErr := msg.Term(ctx, err); termErr != nil {
			logger.Error("failed to terminate message", "error", termErr)
		}
		recordProcessed(c.config.Topic, "dead")
		return
	}

	if c.config.MaxAttempts > 0 && msg.Attempt >= c.config.MaxAttempts {
		if termErr := msg.Term(ctx, fmt.Errorf("max attempts exceeded: %w", err)); termErr != nil {
			logger.Error("failed to terminate message", "error", termErr)
		}
		recordProcessed(c.config.Topic, "dead")
		return
	}

	delay := c.calculateBackoff(msg.Attempt)
	if nackErr := msg.Nack(ctx, err, delay); nackErr != nil {
		logger.Error("failed to nack message", "error", nackErr)
	}
	recordProcessed(c.config.Topic, "retry")
}

func (c *Consumer) calculateBackoff(attempt int) time.Duration {
	backoff := float64(c.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= c.config.BackoffMultiplier
	}

	if backoff > float64(c.config.MaxBackoff) {
		backoff = float64(c.config.MaxBackoff)
	}

	return time.Duration(backoff)
}

// JSONHandler decodes and validates a message body into T before calling fn.
// Malformed messages are not retried.
func JSONHandler[T any](validate *validator.Validate, fn func(ctx context.Context, v T) error) Handler {
	return func(ctx context.Context, msg *Message) error {
		var v T
		if err := json.Unmarshal(msg.Body, &v); err != nil {
			recordProcessed(msg.Topic, "malformed")
			return NewNonRetryableError(fmt.Errorf("decode message: %w", err))
		}
		if err := validate.Struct(v); err != nil {
			recordProcessed(msg.Topic, "malformed")
			return NewNonRetryableError(fmt.Errorf("validate message: %w", err))
		}
		return fn(ctx, v)
	}
}
