// Package postgres provides PostgreSQL implementation of the monitor state store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements checker.StateStore and checker.EventWriter.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetState returns the monitor state or nil if none exists.
func (r *Repository) GetState(ctx context.Context, monitorID string) (*domain.MonitorState, error) {
	query := `
		SELECT monitor_id, team_id, last_checked_at, last_status, last_latency_ms,
		       consecutive_failures, last_error, incident_open
		FROM monitor_state
		WHERE monitor_id = $1
	`
	var s domain.MonitorState
	err := r.db.QueryRow(ctx, query, monitorID).Scan(
		&s.MonitorID,
		&s.TeamID,
		&s.LastCheckedAt,
		&s.LastStatus,
		&s.LastLatencyMS,
		&s.ConsecutiveFailures,
		&s.LastError,
		&s.IncidentOpen,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor state: %w", err)
	}
	return &s, nil
}

// UpsertState writes the check outcome. incident_open is left untouched on
// conflict so a concurrent coordinator transition is never overwritten.
func (r *Repository) UpsertState(ctx context.Context, s domain.MonitorState) error {
	query := `
		INSERT INTO monitor_state (monitor_id, team_id, last_checked_at, last_status,
		                           last_latency_ms, consecutive_failures, last_error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (monitor_id) DO UPDATE SET
			team_id = EXCLUDED.team_id,
			last_checked_at = EXCLUDED.last_checked_at,
			last_status = EXCLUDED.last_status,
			last_latency_ms = EXCLUDED.last_latency_ms,
			consecutive_failures = EXCLUDED.consecutive_failures,
			last_error = EXCLUDED.last_error,
			updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		s.MonitorID, s.TeamID, s.LastCheckedAt, s.LastStatus,
		s.LastLatencyMS, s.ConsecutiveFailures, s.LastError,
	)
	if err != nil {
		return fmt.Errorf("upsert monitor state: %w", err)
	}
	return nil
}

// LastHeartbeat returns the last check-in time of a monitor.
func (r *Repository) LastHeartbeat(ctx context.Context, monitorID string) (*time.Time, error) {
	var last *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT last_heartbeat_at FROM monitors WHERE id = $1`, monitorID,
	).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last heartbeat: %w", err)
	}
	return last, nil
}

// InsertCheckEvents stores a batch of check events.
func (r *Repository) InsertCheckEvents(ctx context.Context, events []domain.CheckEvent) error {
	query := `
		INSERT INTO check_events (monitor_id, team_id, type, status, latency_ms, reason, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(query, e.MonitorID, e.TeamID, e.Type, e.Status, e.LatencyMS, e.Reason, e.CheckedAt)
	}

	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert check events: %w", err)
	}
	return nil
}
