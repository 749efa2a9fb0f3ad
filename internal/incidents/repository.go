package incidents

import (
	"context"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the data access interface for monitor incidents.
type Repository interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	// LockMonitorTx serializes transitions for a monitor across processes
	// until the transaction ends.
	LockMonitorTx(ctx context.Context, tx pgx.Tx, monitorID string) error
	// FindOpenIncidentTx returns nil when the monitor has no open incident.
	FindOpenIncidentTx(ctx context.Context, tx pgx.Tx, monitorID string) (*domain.Incident, error)
	CreateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
	ResolveIncidentTx(ctx context.Context, tx pgx.Tx, incidentID string, update *domain.IncidentUpdate) error
	SetIncidentOpenTx(ctx context.Context, tx pgx.Tx, teamID, monitorID string, open bool) error
}
