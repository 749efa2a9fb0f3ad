//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
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

func setup(t *testing.T) (*Repository, *domain.Monitor, context.Context) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, testDB.Truncate(ctx,
		"monitors", "monitor_groups", "components", "suppressions", "notification_channels"))

	m := &domain.Monitor{Name: "api", Enabled: true}
	require.NoError(t, testutil.InsertMonitor(ctx, testDB.Pool, m))
	return NewRepository(testDB.Pool), m, ctx
}

func TestRepository_ListAlertTargets(t *testing.T) {
	repo, m, ctx := setup(t)

	enabledID, err := testutil.InsertWebhookPolicy(ctx, testDB.Pool, m.TeamID, m.ID, "https://hooks.example.com/a", false)
	require.NoError(t, err)
	disabledID, err := testutil.InsertWebhookPolicy(ctx, testDB.Pool, m.TeamID, m.ID, "https://hooks.example.com/b", true)
	require.NoError(t, err)
	_, err = testDB.Pool.Exec(ctx, `UPDATE notification_channels SET enabled = FALSE WHERE id = $1`, disabledID)
	require.NoError(t, err)

	targets, err := repo.ListAlertTargets(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, enabledID, targets[0].Channel.ID)
	assert.Equal(t, domain.ChannelTypeWebhook, targets[0].Channel.Type)
	assert.Equal(t, "https://hooks.example.com/a", targets[0].Channel.URL)
	assert.False(t, targets[0].NotifyOnRecovery)
}

func TestRepository_MonitorSuppressed(t *testing.T) {
	now := time.Now().UTC()
	ended := now.Add(-time.Minute)

	tests := []struct {
		name  string
		build func(t *testing.T, ctx context.Context, m *domain.Monitor) *domain.Suppression
		want  bool
	}{
		{
			name: "monitor scope",
			build: func(_ *testing.T, _ context.Context, m *domain.Monitor) *domain.Suppression {
				return &domain.Suppression{TeamID: m.TeamID, Kind: domain.SuppressionKindSilence, StartsAt: now.Add(-time.Hour),
					Scopes: []domain.SuppressionScope{{Type: domain.ScopeMonitor, ID: m.ID}}}
			},
			want: true,
		},
		{
			name: "group scope",
			build: func(t *testing.T, ctx context.Context, m *domain.Monitor) *domain.Suppression {
				groupID, err := testutil.InsertMonitorGroup(ctx, testDB.Pool, m.TeamID, m.ID)
				require.NoError(t, err)
				return &domain.Suppression{TeamID: m.TeamID, Kind: domain.SuppressionKindMaintenance, StartsAt: now.Add(-time.Hour),
					Scopes: []domain.SuppressionScope{{Type: domain.ScopeMonitorGroup, ID: groupID}}}
			},
			want: true,
		},
		{
			name: "component scope",
			build: func(t *testing.T, ctx context.Context, m *domain.Monitor) *domain.Suppression {
				c := &domain.Component{Name: "API", MonitorIDs: []string{m.ID}}
				require.NoError(t, testutil.InsertComponent(ctx, testDB.Pool, m.TeamID, "", c))
				return &domain.Suppression{TeamID: m.TeamID, Kind: domain.SuppressionKindMaintenance, StartsAt: now.Add(-time.Hour),
					Scopes: []domain.SuppressionScope{{Type: domain.ScopeComponent, ID: c.ID}}}
			},
			want: true,
		},
		{
			name: "ended window",
			build: func(_ *testing.T, _ context.Context, m *domain.Monitor) *domain.Suppression {
				return &domain.Suppression{TeamID: m.TeamID, Kind: domain.SuppressionKindSilence, StartsAt: now.Add(-time.Hour), EndsAt: &ended,
					Scopes: []domain.SuppressionScope{{Type: domain.ScopeMonitor, ID: m.ID}}}
			},
			want: false,
		},
		{
			name: "other monitor",
			build: func(_ *testing.T, _ context.Context, m *domain.Monitor) *domain.Suppression {
				return &domain.Suppression{TeamID: m.TeamID, Kind: domain.SuppressionKindSilence, StartsAt: now.Add(-time.Hour),
					Scopes: []domain.SuppressionScope{{Type: domain.ScopeMonitor, ID: uuid.NewString()}}}
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, m, ctx := setup(t)
			require.NoError(t, testutil.InsertSuppression(ctx, testDB.Pool, tt.build(t, ctx, m)))

			got, err := repo.MonitorSuppressed(ctx, m.ID, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRepository_Deliveries(t *testing.T) {
	repo, m, ctx := setup(t)
	channelID, err := testutil.InsertWebhookPolicy(ctx, testDB.Pool, m.TeamID, m.ID, "https://hooks.example.com/a", true)
	require.NoError(t, err)
	alertID := uuid.NewString()

	delivered, err := repo.IsDelivered(ctx, alertID, channelID)
	require.NoError(t, err)
	assert.False(t, delivered)

	require.NoError(t, repo.MarkDelivered(ctx, alertID, channelID))
	require.NoError(t, repo.MarkDelivered(ctx, alertID, channelID))

	delivered, err = repo.IsDelivered(ctx, alertID, channelID)
	require.NoError(t, err)
	assert.True(t, delivered)
}
