package alerts

import (
	"context"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// Repository defines the data access interface for alert dispatch.
type Repository interface {
	// ListAlertTargets returns policies of the monitor joined with their
	// enabled channels.
	ListAlertTargets(ctx context.Context, monitorID string) ([]domain.AlertTarget, error)
	// MonitorSuppressed reports whether an active silence or maintenance
	// window covers the monitor directly, through its group or through a
	// linked component.
	MonitorSuppressed(ctx context.Context, monitorID string, now time.Time) (bool, error)
	IsDelivered(ctx context.Context, alertID, channelID string) (bool, error)
	MarkDelivered(ctx context.Context, alertID, channelID string) error
}
