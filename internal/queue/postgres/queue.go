// Package postgres provides a PostgreSQL-backed queue.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/queue"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config contains queue configuration.
type Config struct {
	Visibility  time.Duration
	MaxAttempts int
}

// Queue implements queue.Broker on top of the queue_messages table.
type Queue struct {
	db     *pgxpool.Pool
	config Config
}

// New creates a new PostgreSQL queue.
func New(db *pgxpool.Pool, config Config) *Queue {
	if config.Visibility <= 0 {
		config.Visibility = time.Minute
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	return &Queue{db: db, config: config}
}

// Publish enqueues payload as JSON.
func (q *Queue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO queue_messages (id, topic, payload, max_attempts)
		VALUES ($1, $2, $3, $4)
	`
	_, err = q.db.Exec(ctx, query, uuid.NewString(), topic, body, q.config.MaxAttempts)
	queue.RecordPublished(topic, err)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Receive claims up to max ready messages. Messages whose visibility
// timeout expired are handed out again.
func (q *Queue) Receive(ctx context.Context, topic string, max int) ([]*queue.Message, error) {
	query := `
		UPDATE queue_messages
		SET status = 'processing',
		    attempts = attempts + 1,
		    locked_until = NOW() + $3::double precision * INTERVAL '1 second'
		WHERE id IN (
			SELECT id FROM queue_messages
			WHERE topic = $1
			  AND (
			    (status = 'pending' AND available_at <= NOW())
			    OR (status = 'processing' AND locked_until <= NOW())
			  )
			ORDER BY available_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, topic, payload, attempts
	`
	rows, err := q.db.Query(ctx, query, topic, max, q.config.Visibility.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]*queue.Message, 0)
	for rows.Next() {
		var (
			id, msgTopic string
			body         []byte
			attempts     int
		)
		if err := rows.Scan(&id, &msgTopic, &body, &attempts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, queue.NewMessage(id, msgTopic, body, attempts, &delivery{q: q, id: id, attempt: attempts}))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return msgs, nil
}

// Stats returns message counts per topic.
func (q *Queue) Stats(ctx context.Context) ([]queue.Stats, error) {
	query := `
		SELECT topic,
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'processing'),
		       COUNT(*) FILTER (WHERE status = 'failed')
		FROM queue_messages
		GROUP BY topic
	`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query queue stats: %w", err)
	}
	defer rows.Close()

	stats := make([]queue.Stats, 0)
	for rows.Next() {
		var s queue.Stats
		if err := rows.Scan(&s.Topic, &s.Pending, &s.Processing, &s.Failed); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Close is a no-op; the pool is owned by the caller.
func (q *Queue) Close() error {
	return nil
}

// delivery settles one claimed message. Updates are guarded by the attempt
// number so a consumer whose visibility expired cannot settle a newer delivery.
type delivery struct {
	q       *Queue
	id      string
	attempt int
}

func (d *delivery) Ack(ctx context.Context) error {
	query := `DELETE FROM queue_messages WHERE id = $1 AND attempts = $2`
	if _, err := d.q.db.Exec(ctx, query, d.id, d.attempt); err != nil {
		return fmt.Errorf("ack message: %w", err)
	}
	return nil
}

func (d *delivery) Nack(ctx context.Context, reason error, delay time.Duration) error {
	query := `
		UPDATE queue_messages
		SET status = 'pending',
		    available_at = NOW() + $3::double precision * INTERVAL '1 second',
		    locked_until = NULL,
		    last_error = $4
		WHERE id = $1 AND attempts = $2
	`
	if _, err := d.q.db.Exec(ctx, query, d.id, d.attempt, delay.Seconds(), errString(reason)); err != nil {
		return fmt.Errorf("nack message: %w", err)
	}
	return nil
}

func (d *delivery) Term(ctx context.Context, reason error) error {
	query := `
		UPDATE queue_messages
		SET status = 'failed', locked_until = NULL, last_error = $3
		WHERE id = $1 AND attempts = $2
	`
	if _, err := d.q.db.Exec(ctx, query, d.id, d.attempt, errString(reason)); err != nil {
		return fmt.Errorf("terminate message: %w", err)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
