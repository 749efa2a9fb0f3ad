package checker

import (
	"context"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// StateStore persists rolling monitor health.
type StateStore interface {
	// GetState returns nil when the monitor has never been checked.
	GetState(ctx context.Context, monitorID string) (*domain.MonitorState, error)
	// UpsertState writes everything except IncidentOpen, which is owned by
	// the incident coordinator.
	UpsertState(ctx context.Context, state domain.MonitorState) error
	LastHeartbeat(ctx context.Context, monitorID string) (*time.Time, error)
}

// EventWriter stores raw check events.
type EventWriter interface {
	InsertCheckEvents(ctx context.Context, events []domain.CheckEvent) error
}
