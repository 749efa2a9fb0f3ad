package scheduler

import (
	"context"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// Repository owns the scheduling columns of monitors. Claim, Release and
// Unlock are conditional writes; false means another worker won the race.
type Repository interface {
	// DueMonitors lists enabled, probe-driven monitors with
	// next_run_at <= now and locked_until <= now.
	DueMonitors(ctx context.Context, now time.Time, limit int) ([]domain.Monitor, error)
	// Claim sets locked_until = lease only if the monitor is still due and unlocked.
	Claim(ctx context.Context, monitorID string, now, lease time.Time) (bool, error)
	// Release sets next_run_at and clears the lease only if locked_until == lease.
	Release(ctx context.Context, monitorID string, lease, nextRun time.Time) (bool, error)
	// Unlock clears the lease only if locked_until == lease, leaving next_run_at as is.
	Unlock(ctx context.Context, monitorID string, lease time.Time) (bool, error)
}
