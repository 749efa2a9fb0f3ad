//go:build integration

package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/config"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/servicetoken"
	"github.com/bissquit/uptime-garden/internal/push"
	"github.com/bissquit/uptime-garden/internal/queue"
	pgqueue "github.com/bissquit/uptime-garden/internal/queue/postgres"
	"github.com/bissquit/uptime-garden/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServiceToken = "test-service-secret"

type testEnv struct {
	app    *App
	server *httptest.Server
	db     *testutil.TestDB
}

func setup(t *testing.T) (*testEnv, context.Context) {
	t.Helper()
	ctx := context.Background()

	db, err := testutil.NewTestDB(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(ctx); err != nil {
			t.Logf("close test db: %v", err)
		}
	})

	t.Setenv("UPTIME_DATABASE__URL", db.Container.ConnectionString)
	t.Setenv("UPTIME_SCHEDULER__ENABLED", "false")
	t.Setenv("UPTIME_COORDINATOR__SERVICE_TOKEN", testServiceToken)
	t.Setenv("UPTIME_LOG__LEVEL", "error")
	t.Setenv("UPTIME_SERVER__PORT", "0")
	t.Setenv("UPTIME_SERVER__METRICS_PORT", "0")

	cfg, err := config.Load("")
	require.NoError(t, err)

	application, err := New(cfg)
	require.NoError(t, err)

	server := httptest.NewServer(application.Router())
	t.Cleanup(func() {
		server.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			t.Logf("shutdown app: %v", err)
		}
	})

	return &testEnv{app: application, server: server, db: db}, ctx
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestApp_Probes(t *testing.T) {
	env, _ := setup(t)

	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
		{"/version", http.StatusOK},
		{"/api/v1/status/missing-page", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, tt.path, "", "")
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestApp_InternalRoutesRequireServiceToken(t *testing.T) {
	env, _ := setup(t)

	resp := env.do(t, http.MethodPost, "/internal/v1/status-pages/missing/rebuild", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/internal/v1/status-pages/missing/rebuild", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := servicetoken.New(servicetoken.Config{SecretKey: testServiceToken, TTL: time.Minute}).Issue("test")
	require.NoError(t, err)

	resp = env.do(t, http.MethodPost, "/internal/v1/status-pages/missing/rebuild", token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/internal/v1/transition", token, `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApp_PushReportIsQueued(t *testing.T) {
	env, ctx := setup(t)

	hash, err := push.HashToken("push-secret")
	require.NoError(t, err)

	monitor := &domain.Monitor{
		Name:             "cron job",
		Type:             domain.MonitorTypeWebhook,
		IntervalSeconds:  60,
		TimeoutMS:        5000,
		FailureThreshold: 1,
		Enabled:          true,
		PushTokenHash:    hash,
	}
	require.NoError(t, testutil.InsertMonitor(ctx, env.db.Pool, monitor))

	path := "/api/v1/push/" + monitor.ID

	resp := env.do(t, http.MethodPost, path, "wrong", `{"status":"down","reason":"backup failed"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, path, "push-secret", `{"status":"down","reason":"backup failed"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body push.ReportResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.JobID)

	broker := pgqueue.New(env.db.Pool, pgqueue.Config{})
	msgs, err := broker.Receive(ctx, queue.TopicChecks, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var job domain.CheckJob
	require.NoError(t, json.Unmarshal(msgs[0].Body, &job))
	assert.Equal(t, body.JobID, job.JobID)
	assert.Equal(t, monitor.ID, job.MonitorID)
	assert.Equal(t, "down", job.ReportedStatus)
	assert.Equal(t, "backup failed", job.ReportedReason)
}
