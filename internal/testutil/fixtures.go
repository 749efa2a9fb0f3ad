package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InsertMonitor stores m, filling ID and TeamID when empty.
func InsertMonitor(ctx context.Context, db *pgxpool.Pool, m *domain.Monitor) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.TeamID == "" {
		m.TeamID = uuid.NewString()
	}
	if m.Type == "" {
		m.Type = domain.MonitorTypeHTTP
	}
	if m.NextRunAt.IsZero() {
		m.NextRunAt = time.Now().Add(-time.Minute)
	}
	if m.LockedUntil.IsZero() {
		m.LockedUntil = time.Unix(0, 0).UTC()
	}
	var pushHash *string
	if m.PushTokenHash != "" {
		pushHash = &m.PushTokenHash
	}

	query := `
		INSERT INTO monitors (id, team_id, name, type, url, interval_seconds, timeout_ms,
		                      failure_threshold, enabled, external_config, push_token_hash,
		                      last_heartbeat_at, next_run_at, locked_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := db.Exec(ctx, query,
		m.ID, m.TeamID, m.Name, m.Type, m.URL, m.IntervalSeconds, m.TimeoutMS,
		m.FailureThreshold, m.Enabled, nullJSON(m.ExternalConfig), pushHash,
		m.LastHeartbeatAt, m.NextRunAt, m.LockedUntil,
	)
	if err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	return nil
}

// InsertMonitorGroup creates a group and assigns the monitors to it.
func InsertMonitorGroup(ctx context.Context, db *pgxpool.Pool, teamID string, monitorIDs ...string) (string, error) {
	var id string
	if err := db.QueryRow(ctx,
		`INSERT INTO monitor_groups (team_id, name) VALUES ($1, 'group') RETURNING id`, teamID,
	).Scan(&id); err != nil {
		return "", fmt.Errorf("insert monitor group: %w", err)
	}
	for _, mid := range monitorIDs {
		if _, err := db.Exec(ctx, `UPDATE monitors SET group_id = $1 WHERE id = $2`, id, mid); err != nil {
			return "", fmt.Errorf("assign monitor group: %w", err)
		}
	}
	return id, nil
}

// InsertStatusPage stores p, filling ID when empty.
func InsertStatusPage(ctx context.Context, db *pgxpool.Pool, p *domain.StatusPage) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `
		INSERT INTO status_pages (id, team_id, slug, name, is_public, logo_url, brand_color, custom_css)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := db.Exec(ctx, query, p.ID, p.TeamID, p.Slug, p.Name, p.IsPublic, p.LogoURL, p.BrandColor, p.CustomCSS); err != nil {
		return fmt.Errorf("insert status page: %w", err)
	}
	return nil
}

// InsertComponent stores c with its monitor links and attaches it to a page.
func InsertComponent(ctx context.Context, db *pgxpool.Pool, teamID, pageID string, c *domain.Component) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	manual := c.ManualStatus
	if manual == "" {
		manual = domain.ManualStatusOperational
	}
	if _, err := db.Exec(ctx,
		`INSERT INTO components (id, team_id, name, description, current_status) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, teamID, c.Name, c.Description, manual,
	); err != nil {
		return fmt.Errorf("insert component: %w", err)
	}
	if pageID != "" {
		if _, err := db.Exec(ctx,
			`INSERT INTO status_page_components (status_page_id, component_id, sort_order) VALUES ($1, $2, $3)`,
			pageID, c.ID, c.SortOrder,
		); err != nil {
			return fmt.Errorf("link component: %w", err)
		}
	}
	for _, mid := range c.MonitorIDs {
		if _, err := db.Exec(ctx,
			`INSERT INTO component_monitors (component_id, monitor_id) VALUES ($1, $2)`, c.ID, mid,
		); err != nil {
			return fmt.Errorf("link monitor: %w", err)
		}
	}
	for _, dep := range c.DependsOn {
		if _, err := db.Exec(ctx,
			`INSERT INTO component_dependencies (component_id, depends_on_component_id) VALUES ($1, $2)`, c.ID, dep,
		); err != nil {
			return fmt.Errorf("link dependency: %w", err)
		}
	}
	return nil
}

// InsertSuppression stores s with its scopes.
func InsertSuppression(ctx context.Context, db *pgxpool.Pool, s *domain.Suppression) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, err := db.Exec(ctx,
		`INSERT INTO suppressions (id, team_id, kind, starts_at, ends_at) VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.TeamID, s.Kind, s.StartsAt, s.EndsAt,
	); err != nil {
		return fmt.Errorf("insert suppression: %w", err)
	}
	for _, scope := range s.Scopes {
		if _, err := db.Exec(ctx,
			`INSERT INTO suppression_scopes (suppression_id, scope_type, scope_id) VALUES ($1, $2, $3)`,
			s.ID, scope.Type, scope.ID,
		); err != nil {
			return fmt.Errorf("insert suppression scope: %w", err)
		}
	}
	return nil
}

// InsertWebhookPolicy creates a webhook channel and a policy linking it to a monitor.
func InsertWebhookPolicy(ctx context.Context, db *pgxpool.Pool, teamID, monitorID, url string, notifyOnRecovery bool) (string, error) {
	var channelID string
	if err := db.QueryRow(ctx,
		`INSERT INTO notification_channels (team_id, type, config_json) VALUES ($1, 'webhook', jsonb_build_object('url', $2::text)) RETURNING id`,
		teamID, url,
	).Scan(&channelID); err != nil {
		return "", fmt.Errorf("insert channel: %w", err)
	}
	if _, err := db.Exec(ctx,
		`INSERT INTO notification_policies (team_id, monitor_id, channel_id, notify_on_recovery) VALUES ($1, $2, $3, $4)`,
		teamID, monitorID, channelID, notifyOnRecovery,
	); err != nil {
		return "", fmt.Errorf("insert policy: %w", err)
	}
	return channelID, nil
}

func nullJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
