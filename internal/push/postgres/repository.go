// Package postgres provides PostgreSQL implementation of the push repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/push"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements push.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetMonitor retrieves the fields needed to authenticate a push.
func (r *Repository) GetMonitor(ctx context.Context, monitorID string) (*domain.Monitor, error) {
	query := `
		SELECT id, team_id, type, interval_seconds, timeout_ms, failure_threshold,
		       enabled, COALESCE(push_token_hash, ''), last_heartbeat_at
		FROM monitors
		WHERE id = $1
	`
	var m domain.Monitor
	err := r.db.QueryRow(ctx, query, monitorID).Scan(
		&m.ID, &m.TeamID, &m.Type, &m.IntervalSeconds, &m.TimeoutMS, &m.FailureThreshold,
		&m.Enabled, &m.PushTokenHash, &m.LastHeartbeatAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, push.ErrMonitorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return &m, nil
}

// RecordHeartbeat sets last_heartbeat_at, never moving it backwards.
func (r *Repository) RecordHeartbeat(ctx context.Context, monitorID string, at time.Time) error {
	query := `
		UPDATE monitors
		SET last_heartbeat_at = GREATEST(COALESCE(last_heartbeat_at, $2), $2)
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, monitorID, at)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return push.ErrMonitorNotFound
	}
	return nil
}
