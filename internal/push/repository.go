package push

import (
	"context"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// Repository defines the data access interface for push endpoints.
type Repository interface {
	// GetMonitor returns ErrMonitorNotFound for unknown monitors.
	GetMonitor(ctx context.Context, monitorID string) (*domain.Monitor, error)
	RecordHeartbeat(ctx context.Context, monitorID string, at time.Time) error
}
