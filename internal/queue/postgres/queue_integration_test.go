//go:build integration

package postgres

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/queue"
	"github.com/bissquit/uptime-garden/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *testutil.TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := testutil.NewTestDB(ctx)
	if err != nil {
		log.Fatalf("setup database: %v", err)
	}
	testDB = db

	code := m.Run()

	if err := db.Close(ctx); err != nil {
		log.Printf("close database: %v", err)
	}
	os.Exit(code)
}

func newTestQueue(t *testing.T, visibility time.Duration) *Queue {
	t.Helper()
	require.NoError(t, testDB.Truncate(context.Background(), "queue_messages"))
	return New(testDB.Pool, Config{Visibility: visibility, MaxAttempts: 3})
}

func TestQueue_PublishReceiveAck(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Minute)

	require.NoError(t, q.Publish(ctx, queue.TopicChecks, map[string]string{"monitor_id": "m1"}))

	msgs, err := q.Receive(ctx, queue.TopicChecks, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].Attempt)
	assert.JSONEq(t, `{"monitor_id":"m1"}`, string(msgs[0].Body))

	// invisible while processing
	again, err := q.Receive(ctx, queue.TopicChecks, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, msgs[0].Ack(ctx))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestQueue_NackRedelivers(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Minute)

	require.NoError(t, q.Publish(ctx, queue.TopicAlerts, map[string]string{"alert_id": "a1"}))

	msgs, err := q.Receive(ctx, queue.TopicAlerts, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, msgs[0].Nack(ctx, errors.New("webhook 500"), 0))

	redelivered, err := q.Receive(ctx, queue.TopicAlerts, 1)
	require.NoError(t, err)
	require.Len(t, redelivered, 1)
	assert.Equal(t, 2, redelivered[0].Attempt)

	// the first delivery can no longer settle the message
	require.NoError(t, msgs[0].Ack(ctx))
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Processing)
}

func TestQueue_VisibilityTimeoutRedelivers(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 200*time.Millisecond)

	require.NoError(t, q.Publish(ctx, queue.TopicChecks, map[string]string{"monitor_id": "m1"}))

	first, err := q.Receive(ctx, queue.TopicChecks, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	time.Sleep(400 * time.Millisecond)

	second, err := q.Receive(ctx, queue.TopicChecks, 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, 2, second[0].Attempt)
}

func TestQueue_TermMarksFailed(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Minute)

	require.NoError(t, q.Publish(ctx, queue.TopicChecks, map[string]string{"monitor_id": "m1"}))
	msgs, err := q.Receive(ctx, queue.TopicChecks, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, msgs[0].Term(ctx, errors.New("malformed")))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Failed)

	none, err := q.Receive(ctx, queue.TopicChecks, 1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQueue_ConcurrentReceiversGetDistinctMessages(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Minute)

	const total = 50
	for i := 0; i < total; i++ {
		require.NoError(t, q.Publish(ctx, queue.TopicChecks, map[string]int{"n": i}))
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				msgs, err := q.Receive(ctx, queue.TopicChecks, 3)
				if err != nil || len(msgs) == 0 {
					return
				}
				mu.Lock()
				for _, m := range msgs {
					seen[m.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "message %s delivered %d times", id, n)
	}
}
