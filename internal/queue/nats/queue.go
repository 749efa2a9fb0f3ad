// Package nats provides a NATS JetStream backed queue.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/uptime-garden/internal/queue"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Config contains JetStream queue configuration.
type Config struct {
	URL        string
	Stream     string
	AckWait    time.Duration
	MaxDeliver int
	FetchWait  time.Duration
}

// Queue implements queue.Broker with one durable pull consumer per topic.
type Queue struct {
	config Config
	nc     *nats.Conn
	js     nats.JetStreamContext

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Connect dials NATS and makes sure the work-queue stream exists.
func Connect(config Config) (*Queue, error) {
	if config.Stream == "" {
		config.Stream = "UPTIME"
	}
	if config.AckWait <= 0 {
		config.AckWait = time.Minute
	}
	if config.FetchWait <= 0 {
		config.FetchWait = time.Second
	}

	nc, err := nats.Connect(config.URL,
		nats.Name("uptime-garden"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open jetstream: %w", err)
	}

	if _, err := js.StreamInfo(config.Stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			nc.Close()
			return nil, fmt.Errorf("get stream info: %w", err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      config.Stream,
			Subjects:  []string{subjectPrefix(config.Stream) + ".>"},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create stream: %w", err)
		}
		slog.Info("created jetstream stream", "stream", config.Stream)
	}

	return &Queue{
		config: config,
		nc:     nc,
		js:     js,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends payload as JSON. The generated message id lets JetStream
// drop duplicate publishes within its dedupe window.
func (q *Queue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = q.js.Publish(subject(q.config.Stream, topic), body, nats.Context(ctx), nats.MsgId(uuid.NewString()))
	queue.RecordPublished(topic, err)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Receive fetches up to max messages, waiting at most FetchWait.
func (q *Queue) Receive(ctx context.Context, topic string, max int) ([]*queue.Message, error) {
	sub, err := q.subscription(topic)
	if err != nil {
		return nil, err
	}

	wait := q.config.FetchWait
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
		wait = time.Until(deadline)
	}

	raw, err := sub.Fetch(max, nats.MaxWait(wait))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch from %s: %w", topic, err)
	}

	msgs := make([]*queue.Message, 0, len(raw))
	for _, m := range raw {
		attempt := 1
		id := ""
		if meta, err := m.Metadata(); err == nil {
			attempt = int(meta.NumDelivered)
			id = fmt.Sprintf("%s:%d", meta.Stream, meta.Sequence.Stream)
		}
		if msgID := m.Header.Get(nats.MsgIdHdr); msgID != "" {
			id = msgID
		}
		msgs = append(msgs, queue.NewMessage(id, topic, m.Data, attempt, &delivery{msg: m}))
	}
	return msgs, nil
}

func (q *Queue) subscription(topic string) (*nats.Subscription, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if sub, ok := q.subs[topic]; ok {
		return sub, nil
	}

	opts := []nats.SubOpt{
		nats.BindStream(q.config.Stream),
		nats.AckWait(q.config.AckWait),
		nats.AckExplicit(),
	}
	if q.config.MaxDeliver > 0 {
		opts = append(opts, nats.MaxDeliver(q.config.MaxDeliver))
	}

	sub, err := q.js.PullSubscribe(subject(q.config.Stream, topic), durableName(topic), opts...)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	q.subs[topic] = sub
	return sub, nil
}

// Close drains the connection.
func (q *Queue) Close() error {
	return q.nc.Drain()
}

type delivery struct {
	msg *nats.Msg
}

func (d *delivery) Ack(_ context.Context) error {
	return d.msg.Ack()
}

func (d *delivery) Nack(_ context.Context, _ error, delay time.Duration) error {
	return d.msg.NakWithDelay(delay)
}

func (d *delivery) Term(_ context.Context, _ error) error {
	return d.msg.Term()
}

func subjectPrefix(stream string) string {
	return strings.ToLower(stream)
}

func subject(stream, topic string) string {
	return subjectPrefix(stream) + "." + topic
}

func durableName(topic string) string {
	return "uptime-" + strings.ReplaceAll(topic, ".", "-")
}
