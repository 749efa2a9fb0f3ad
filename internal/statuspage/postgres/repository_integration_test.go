//go:build integration

package postgres

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/checker"
	checkerpg "github.com/bissquit/uptime-garden/internal/checker/postgres"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/incidents"
	incidentspg "github.com/bissquit/uptime-garden/internal/incidents/postgres"
	"github.com/bissquit/uptime-garden/internal/probe"
	"github.com/bissquit/uptime-garden/internal/queue"
	queuepg "github.com/bissquit/uptime-garden/internal/queue/postgres"
	"github.com/bissquit/uptime-garden/internal/statuspage"
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

type fixture struct {
	teamID string
	page   *domain.StatusPage
	api    *domain.Monitor
	db     *domain.Monitor
}

func setup(t *testing.T) (*Repository, *fixture, context.Context) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, testDB.Truncate(ctx,
		"monitors", "monitor_groups", "status_pages", "components", "incidents", "suppressions", "queue_messages"))

	f := &fixture{teamID: uuid.NewString()}
	f.api = &domain.Monitor{TeamID: f.teamID, Name: "api", Enabled: true, FailureThreshold: 3}
	f.db = &domain.Monitor{TeamID: f.teamID, Name: "db", Enabled: true}
	require.NoError(t, testutil.InsertMonitor(ctx, testDB.Pool, f.api))
	require.NoError(t, testutil.InsertMonitor(ctx, testDB.Pool, f.db))

	f.page = &domain.StatusPage{TeamID: f.teamID, Slug: "acme-" + f.teamID[:8], Name: "Acme", IsPublic: true}
	require.NoError(t, testutil.InsertStatusPage(ctx, testDB.Pool, f.page))

	database := &domain.Component{Name: "Database", MonitorIDs: []string{f.db.ID}}
	require.NoError(t, testutil.InsertComponent(ctx, testDB.Pool, f.teamID, "", database))
	api := &domain.Component{Name: "API", MonitorIDs: []string{f.api.ID}, DependsOn: []string{database.ID}, SortOrder: 1}
	require.NoError(t, testutil.InsertComponent(ctx, testDB.Pool, f.teamID, f.page.ID, api))
	web := &domain.Component{Name: "Website", SortOrder: 0}
	require.NoError(t, testutil.InsertComponent(ctx, testDB.Pool, f.teamID, f.page.ID, web))

	return NewRepository(testDB.Pool), f, ctx
}

func setMonitorStatus(t *testing.T, ctx context.Context, m *domain.Monitor, status domain.CheckStatus) {
	t.Helper()
	_, err := testDB.Pool.Exec(ctx, `
		INSERT INTO monitor_state (monitor_id, team_id, last_status) VALUES ($1, $2, $3)
		ON CONFLICT (monitor_id) DO UPDATE SET last_status = EXCLUDED.last_status
	`, m.ID, m.TeamID, status)
	require.NoError(t, err)
}

func TestRepository_GetStatusPageBySlug(t *testing.T) {
	repo, f, ctx := setup(t)

	page, err := repo.GetStatusPageBySlug(ctx, f.page.Slug)
	require.NoError(t, err)
	assert.Equal(t, f.page.ID, page.ID)

	_, err = repo.GetStatusPageBySlug(ctx, "missing")
	assert.ErrorIs(t, err, statuspage.ErrStatusPageNotFound)

	private := &domain.StatusPage{TeamID: f.teamID, Slug: "private-" + f.teamID[:8], Name: "Internal", IsPublic: false}
	require.NoError(t, testutil.InsertStatusPage(ctx, testDB.Pool, private))
	_, err = repo.GetStatusPageBySlug(ctx, private.Slug)
	assert.ErrorIs(t, err, statuspage.ErrStatusPageNotFound)
}

func TestRepository_ComponentsAndLinks(t *testing.T) {
	repo, f, ctx := setup(t)

	ids, err := repo.ListPageComponentIDs(ctx, f.page.ID)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	components, err := repo.ListTeamComponents(ctx, f.teamID)
	require.NoError(t, err)
	require.Len(t, components, 3)

	byName := make(map[string]domain.Component)
	for _, c := range components {
		byName[c.Name] = c
	}
	assert.Equal(t, ids[0], byName["Website"].ID)
	assert.Equal(t, ids[1], byName["API"].ID)
	assert.Equal(t, []string{f.api.ID}, byName["API"].MonitorIDs)
	assert.Equal(t, []string{byName["Database"].ID}, byName["API"].DependsOn)
	assert.Equal(t, domain.ManualStatusOperational, byName["Website"].ManualStatus)
}

func TestRepository_ListActiveSuppressions(t *testing.T) {
	repo, f, ctx := setup(t)
	now := time.Now().UTC()
	ended := now.Add(-time.Minute)

	active := &domain.Suppression{
		TeamID: f.teamID, Kind: domain.SuppressionKindMaintenance, StartsAt: now.Add(-time.Hour),
		Scopes: []domain.SuppressionScope{
			{Type: domain.ScopeMonitor, ID: f.api.ID},
			{Type: domain.ScopeMonitor, ID: f.db.ID},
		},
	}
	past := &domain.Suppression{TeamID: f.teamID, Kind: domain.SuppressionKindSilence, StartsAt: now.Add(-time.Hour), EndsAt: &ended}
	future := &domain.Suppression{TeamID: f.teamID, Kind: domain.SuppressionKindSilence, StartsAt: now.Add(time.Hour)}
	for _, s := range []*domain.Suppression{active, past, future} {
		require.NoError(t, testutil.InsertSuppression(ctx, testDB.Pool, s))
	}

	got, err := repo.ListActiveSuppressions(ctx, f.teamID, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)
	assert.Len(t, got[0].Scopes, 2)
}

func TestRepository_ListPageIncidents_OpenBeyondLimit(t *testing.T) {
	repo, f, ctx := setup(t)
	now := time.Now().UTC()
	const limit = 50

	insert := func(status domain.IncidentStatus, startedAt time.Time, resolvedAt *time.Time) string {
		var id string
		err := testDB.Pool.QueryRow(ctx, `
			INSERT INTO incidents (team_id, status_page_id, title, status, started_at, resolved_at)
			VALUES ($1, $2, 'Monitor down', $3, $4, $5)
			RETURNING id
		`, f.teamID, f.page.ID, status, startedAt, resolvedAt).Scan(&id)
		require.NoError(t, err)
		return id
	}

	openID := insert(domain.IncidentStatusInvestigating, now.Add(-40*24*time.Hour), nil)
	for i := 0; i < limit+1; i++ {
		resolvedAt := now.Add(-time.Duration(i+1) * time.Hour)
		insert(domain.IncidentStatusResolved, resolvedAt.Add(-time.Minute), &resolvedAt)
	}
	oldResolved := now.Add(-31 * 24 * time.Hour)
	insert(domain.IncidentStatusResolved, oldResolved.Add(-time.Hour), &oldResolved)

	got, err := repo.ListPageIncidents(ctx, f.page.ID, now.Add(-30*24*time.Hour), limit)
	require.NoError(t, err)
	require.Len(t, got, limit+1)

	resolved := 0
	for _, inc := range got {
		if inc.Status == domain.IncidentStatusResolved {
			resolved++
		}
	}
	assert.Equal(t, limit, resolved)
	assert.Equal(t, openID, got[len(got)-1].ID, "oldest open incident is still listed")
}

func TestEngine_Postgres_Propagation(t *testing.T) {
	repo, f, ctx := setup(t)
	setMonitorStatus(t, ctx, f.api, domain.CheckStatusUp)
	setMonitorStatus(t, ctx, f.db, domain.CheckStatusDown)

	engine := statuspage.NewEngine(statuspage.DefaultConfig(), repo)
	snapshot, err := engine.Get(ctx, f.page.Slug)
	require.NoError(t, err)

	require.Len(t, snapshot.Components, 2)
	assert.Equal(t, "Website", snapshot.Components[0].Name)
	assert.Equal(t, domain.StatusUnknown, snapshot.Components[0].Status)
	assert.Equal(t, "API", snapshot.Components[1].Name)
	assert.Equal(t, domain.StatusDown, snapshot.Components[1].Status)
}

func TestEndToEnd_OutageAndRecovery(t *testing.T) {
	repo, f, ctx := setup(t)
	setMonitorStatus(t, ctx, f.db, domain.CheckStatusUp)

	var healthy atomic.Bool
	healthy.Store(false)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	engine := statuspage.NewEngine(statuspage.DefaultConfig(), repo)
	coordinator := incidents.NewCoordinator(incidents.DefaultConfig(), incidentspg.NewRepository(testDB.Pool), engine)
	states := checkerpg.NewRepository(testDB.Pool)
	broker := queuepg.New(testDB.Pool, queuepg.Config{})
	executor := checker.NewExecutor(
		probe.New(probe.Config{}, states), states, coordinator, broker, nil, domain.DefaultBounds(),
	)

	job := func() domain.CheckJob {
		return domain.CheckJob{
			JobID:            uuid.NewString(),
			TeamID:           f.teamID,
			MonitorID:        f.api.ID,
			MonitorType:      domain.MonitorTypeHTTP,
			URL:              srv.URL,
			TimeoutMS:        2000,
			FailureThreshold: 3,
		}
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, executor.HandleCheck(ctx, job()))
	}
	coordinator.Wait()

	snapshot, err := engine.Get(ctx, f.page.Slug)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDown, snapshot.Components[1].Status)
	require.Len(t, snapshot.Incidents, 1)
	assert.Equal(t, domain.IncidentStatusInvestigating, snapshot.Incidents[0].Status)
	require.Len(t, snapshot.Incidents[0].Updates, 1)
	assert.Equal(t, "HTTP 502", snapshot.Incidents[0].Updates[0].Message)

	healthy.Store(true)
	require.NoError(t, executor.HandleCheck(ctx, job()))
	coordinator.Wait()

	snapshot, err = engine.Get(ctx, f.page.Slug)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUp, snapshot.Components[1].Status)
	require.Len(t, snapshot.Incidents, 1)
	assert.Equal(t, domain.IncidentStatusResolved, snapshot.Incidents[0].Status)
	assert.NotNil(t, snapshot.Incidents[0].ResolvedAt)
	assert.Len(t, snapshot.Incidents[0].Updates, 2)

	alerts, err := broker.Receive(ctx, queue.TopicAlerts, 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 2, "one down and one recovery alert")
}
