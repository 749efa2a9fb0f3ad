// Package postgres provides PostgreSQL implementation of the alerts repository.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements alerts.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListAlertTargets returns the monitor's policies joined with enabled channels.
func (r *Repository) ListAlertTargets(ctx context.Context, monitorID string) ([]domain.AlertTarget, error) {
	query := `
		SELECT p.id, p.notify_on_recovery, p.threshold_failures,
		       c.id, c.team_id, c.type, COALESCE(c.config_json->>'url', ''), c.enabled
		FROM notification_policies p
		JOIN notification_channels c ON c.id = p.channel_id
		WHERE p.monitor_id = $1 AND c.enabled
		ORDER BY p.created_at, p.id
	`
	rows, err := r.db.Query(ctx, query, monitorID)
	if err != nil {
		return nil, fmt.Errorf("list alert targets: %w", err)
	}
	defer rows.Close()

	targets := make([]domain.AlertTarget, 0)
	for rows.Next() {
		var t domain.AlertTarget
		err := rows.Scan(
			&t.PolicyID, &t.NotifyOnRecovery, &t.ThresholdFailures,
			&t.Channel.ID, &t.Channel.TeamID, &t.Channel.Type, &t.Channel.URL, &t.Channel.Enabled,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert target: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert targets: %w", err)
	}
	return targets, nil
}

// MonitorSuppressed checks for an active suppression scoped to the monitor,
// its group or a component linked to it.
func (r *Repository) MonitorSuppressed(ctx context.Context, monitorID string, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM suppressions s
			JOIN suppression_scopes ss ON ss.suppression_id = s.id
			JOIN monitors m ON m.id = $1
			WHERE s.team_id = m.team_id
			  AND s.starts_at <= $2
			  AND (s.ends_at IS NULL OR s.ends_at > $2)
			  AND (
			        (ss.scope_type = 'monitor' AND ss.scope_id = m.id)
			     OR (ss.scope_type = 'monitor_group' AND ss.scope_id = m.group_id)
			     OR (ss.scope_type = 'component' AND ss.scope_id IN (
			            SELECT component_id FROM component_monitors WHERE monitor_id = m.id
			        ))
			  )
		)
	`
	var suppressed bool
	if err := r.db.QueryRow(ctx, query, monitorID, now).Scan(&suppressed); err != nil {
		return false, fmt.Errorf("check suppressions: %w", err)
	}
	return suppressed, nil
}

// IsDelivered reports whether the alert already reached the channel.
func (r *Repository) IsDelivered(ctx context.Context, alertID, channelID string) (bool, error) {
	var delivered bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM alert_deliveries WHERE alert_id = $1 AND channel_id = $2)`,
		alertID, channelID,
	).Scan(&delivered)
	if err != nil {
		return false, fmt.Errorf("check delivery: %w", err)
	}
	return delivered, nil
}

// MarkDelivered records a successful delivery.
func (r *Repository) MarkDelivered(ctx context.Context, alertID, channelID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO alert_deliveries (alert_id, channel_id) VALUES ($1, $2)
		ON CONFLICT (alert_id, channel_id) DO NOTHING
	`, alertID, channelID)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}
