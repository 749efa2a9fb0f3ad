//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/push"
	"github.com/bissquit/uptime-garden/internal/testutil"
	"github.com/google/uuid"
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

func TestRepository_GetMonitor(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.Truncate(ctx, "monitors"))
	repo := NewRepository(testDB.Pool)

	m := &domain.Monitor{Name: "cron", Type: domain.MonitorTypeWebhook, Enabled: true, PushTokenHash: "$2a$04$hash", FailureThreshold: 2}
	require.NoError(t, testutil.InsertMonitor(ctx, testDB.Pool, m))

	got, err := repo.GetMonitor(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.TeamID, got.TeamID)
	assert.Equal(t, domain.MonitorTypeWebhook, got.Type)
	assert.Equal(t, "$2a$04$hash", got.PushTokenHash)
	assert.Equal(t, 2, got.FailureThreshold)

	_, err = repo.GetMonitor(ctx, uuid.NewString())
	assert.ErrorIs(t, err, push.ErrMonitorNotFound)
}

func TestRepository_RecordHeartbeat(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.Truncate(ctx, "monitors"))
	repo := NewRepository(testDB.Pool)

	m := &domain.Monitor{Name: "backup", Type: domain.MonitorTypeHeartbeat, Enabled: true}
	require.NoError(t, testutil.InsertMonitor(ctx, testDB.Pool, m))

	later := time.Now().UTC().Truncate(time.Microsecond)
	earlier := later.Add(-time.Minute)

	require.NoError(t, repo.RecordHeartbeat(ctx, m.ID, later))
	require.NoError(t, repo.RecordHeartbeat(ctx, m.ID, earlier))

	got, err := repo.GetMonitor(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastHeartbeatAt)
	assert.True(t, later.Equal(*got.LastHeartbeatAt), "heartbeat never moves backwards")

	assert.ErrorIs(t, repo.RecordHeartbeat(ctx, uuid.NewString(), later), push.ErrMonitorNotFound)
}
