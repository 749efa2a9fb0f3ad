//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
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

func setup(t *testing.T) (*Repository, context.Context) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, testDB.Truncate(ctx, "monitors"))
	return NewRepository(testDB.Pool), ctx
}

func TestRepository_DueMonitors(t *testing.T) {
	repo, ctx := setup(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	due := &domain.Monitor{Name: "due", Enabled: true, IntervalSeconds: 60, NextRunAt: now.Add(-time.Second)}
	future := &domain.Monitor{Name: "future", Enabled: true, NextRunAt: now.Add(time.Minute)}
	locked := &domain.Monitor{Name: "locked", Enabled: true, NextRunAt: now.Add(-time.Second), LockedUntil: now.Add(time.Minute)}
	disabled := &domain.Monitor{Name: "disabled", Enabled: false, NextRunAt: now.Add(-time.Second)}
	push := &domain.Monitor{Name: "push", Type: domain.MonitorTypeWebhook, Enabled: true, NextRunAt: now.Add(-time.Second)}
	for _, m := range []*domain.Monitor{due, future, locked, disabled, push} {
		require.NoError(t, testutil.InsertMonitor(ctx, testDB.Pool, m))
	}

	monitors, err := repo.DueMonitors(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, monitors, 1)
	assert.Equal(t, due.ID, monitors[0].ID)
	assert.Equal(t, 60, monitors[0].IntervalSeconds)
}

func TestRepository_ClaimReleaseUnlock(t *testing.T) {
	repo, ctx := setup(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	m := &domain.Monitor{Name: "m", Enabled: true, NextRunAt: now.Add(-time.Second)}
	require.NoError(t, testutil.InsertMonitor(ctx, testDB.Pool, m))

	lease := now.Add(90 * time.Second)
	ok, err := repo.Claim(ctx, m.ID, now, lease)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, m.ID, now, lease.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "second claim must fail while leased")

	ok, err = repo.Release(ctx, m.ID, lease.Add(time.Second), now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "release with a foreign lease value must fail")

	ok, err = repo.Unlock(ctx, m.ID, lease)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, m.ID, now, lease)
	require.NoError(t, err)
	assert.True(t, ok, "unlocked monitor is claimable again")

	ok, err = repo.Release(ctx, m.ID, lease, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	monitors, err := repo.DueMonitors(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, monitors)
}

func TestRepository_ConcurrentClaims(t *testing.T) {
	repo, ctx := setup(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	m := &domain.Monitor{Name: "m", Enabled: true, NextRunAt: now.Add(-time.Second)}
	require.NoError(t, testutil.InsertMonitor(ctx, testDB.Pool, m))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := repo.Claim(ctx, m.ID, now, now.Add(time.Duration(90+i)*time.Second))
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
