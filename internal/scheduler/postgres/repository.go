// Package postgres provides PostgreSQL implementation of the scheduler repository.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

var epoch = time.Unix(0, 0).UTC()

// Repository implements scheduler.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// DueMonitors returns enabled probe monitors that are due and unlocked.
func (r *Repository) DueMonitors(ctx context.Context, now time.Time, limit int) ([]domain.Monitor, error) {
	query := `
		SELECT id, team_id, name, type, url, interval_seconds, timeout_ms,
		       failure_threshold, enabled, external_config, next_run_at, locked_until
		FROM monitors
		WHERE enabled
		  AND type NOT IN ('webhook', 'manual')
		  AND next_run_at <= $1
		  AND locked_until <= $1
		ORDER BY next_run_at
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due monitors: %w", err)
	}
	defer rows.Close()

	monitors := make([]domain.Monitor, 0)
	for rows.Next() {
		var m domain.Monitor
		var externalConfig []byte
		err := rows.Scan(
			&m.ID,
			&m.TeamID,
			&m.Name,
			&m.Type,
			&m.URL,
			&m.IntervalSeconds,
			&m.TimeoutMS,
			&m.FailureThreshold,
			&m.Enabled,
			&externalConfig,
			&m.NextRunAt,
			&m.LockedUntil,
		)
		if err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}
		m.ExternalConfig = externalConfig
		monitors = append(monitors, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monitors: %w", err)
	}

	return monitors, nil
}

// Claim takes the lease if the monitor is still due and unlocked.
func (r *Repository) Claim(ctx context.Context, monitorID string, now, lease time.Time) (bool, error) {
	query := `
		UPDATE monitors
		SET locked_until = $3
		WHERE id = $1
		  AND enabled
		  AND next_run_at <= $2
		  AND locked_until <= $2
	`
	result, err := r.db.Exec(ctx, query, monitorID, now, lease)
	if err != nil {
		return false, fmt.Errorf("claim monitor: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// Release advances next_run_at and clears the lease if it is still ours.
func (r *Repository) Release(ctx context.Context, monitorID string, lease, nextRun time.Time) (bool, error) {
	query := `
		UPDATE monitors
		SET next_run_at = $3, locked_until = $4
		WHERE id = $1 AND locked_until = $2
	`
	result, err := r.db.Exec(ctx, query, monitorID, lease, nextRun, epoch)
	if err != nil {
		return false, fmt.Errorf("release monitor: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// Unlock clears the lease if it is still ours without touching next_run_at.
func (r *Repository) Unlock(ctx context.Context, monitorID string, lease time.Time) (bool, error) {
	query := `
		UPDATE monitors
		SET locked_until = $3
		WHERE id = $1 AND locked_until = $2
	`
	result, err := r.db.Exec(ctx, query, monitorID, lease, epoch)
	if err != nil {
		return false, fmt.Errorf("unlock monitor: %w", err)
	}
	return result.RowsAffected() == 1, nil
}
