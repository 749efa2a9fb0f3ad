// Package postgres provides PostgreSQL implementation of the incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/incidents"
	pgutil "github.com/bissquit/uptime-garden/internal/pkg/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// BeginTx starts a new database transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// LockMonitorTx takes a transaction-scoped advisory lock on the monitor.
func (r *Repository) LockMonitorTx(ctx context.Context, tx pgx.Tx, monitorID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, monitorID); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}

// FindOpenIncidentTx returns the monitor's unresolved incident, if any.
func (r *Repository) FindOpenIncidentTx(ctx context.Context, tx pgx.Tx, monitorID string) (*domain.Incident, error) {
	query := `
		SELECT id, team_id, status_page_id, monitor_id, title, status, started_at, resolved_at
		FROM incidents
		WHERE monitor_id = $1 AND status <> 'resolved'
		FOR UPDATE
	`
	var inc domain.Incident
	err := tx.QueryRow(ctx, query, monitorID).Scan(
		&inc.ID,
		&inc.TeamID,
		&inc.StatusPageID,
		&inc.MonitorID,
		&inc.Title,
		&inc.Status,
		&inc.StartedAt,
		&inc.ResolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query open incident: %w", err)
	}
	return &inc, nil
}

// CreateIncidentTx inserts the incident and its initial updates.
func (r *Repository) CreateIncidentTx(ctx context.Context, tx pgx.Tx, inc *domain.Incident) error {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}

	query := `
		INSERT INTO incidents (id, team_id, status_page_id, monitor_id, title, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.Exec(ctx, query,
		inc.ID, inc.TeamID, inc.StatusPageID, inc.MonitorID, inc.Title, inc.Status, inc.StartedAt,
	)
	if pgutil.IsUniqueViolation(err) {
		return incidents.ErrIncidentAlreadyOpen
	}
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}

	for i := range inc.Updates {
		u := &inc.Updates[i]
		u.IncidentID = inc.ID
		if err := insertUpdate(ctx, tx, u); err != nil {
			return err
		}
	}
	return nil
}

// ResolveIncidentTx marks the incident resolved and appends the update.
func (r *Repository) ResolveIncidentTx(ctx context.Context, tx pgx.Tx, incidentID string, update *domain.IncidentUpdate) error {
	_, err := tx.Exec(ctx,
		`UPDATE incidents SET status = 'resolved', resolved_at = $2 WHERE id = $1`,
		incidentID, update.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}

	update.IncidentID = incidentID
	return insertUpdate(ctx, tx, update)
}

// SetIncidentOpenTx sets monitor_state.incident_open, creating the row if needed.
func (r *Repository) SetIncidentOpenTx(ctx context.Context, tx pgx.Tx, teamID, monitorID string, open bool) error {
	query := `
		INSERT INTO monitor_state (monitor_id, team_id, incident_open, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (monitor_id) DO UPDATE SET
			incident_open = EXCLUDED.incident_open,
			updated_at = NOW()
	`
	if _, err := tx.Exec(ctx, query, monitorID, teamID, open); err != nil {
		return fmt.Errorf("set incident open: %w", err)
	}
	return nil
}

func insertUpdate(ctx context.Context, tx pgx.Tx, u *domain.IncidentUpdate) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO incident_updates (id, incident_id, message, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.IncidentID, u.Message, u.Status, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert incident update: %w", err)
	}
	return nil
}
