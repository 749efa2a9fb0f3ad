package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// Reported status values accepted from push monitors.
const (
	ReportedUp       = "up"
	ReportedDown     = "down"
	ReportedDegraded = "degraded"
)

type heartbeatConfig struct {
	GraceSeconds int `json:"graceSeconds"`
}

// Reported maps a pushed status onto a check status. Degraded counts as down.
func Reported(status, reason string) (Result, error) {
	switch status {
	case ReportedUp:
		return Result{Status: domain.CheckStatusUp, Reason: withDefault(reason, "Reported up.")}, nil
	case ReportedDown:
		return Result{Status: domain.CheckStatusDown, Reason: withDefault(reason, "Reported down.")}, nil
	case ReportedDegraded:
		return Result{Status: domain.CheckStatusDown, Reason: withDefault(reason, "Service is degraded.")}, nil
	default:
		return Result{}, fmt.Errorf("unknown reported status %q", status)
	}
}

// HeartbeatStatus decides whether a heartbeat monitor is overdue.
func HeartbeatStatus(now time.Time, lastSeen *time.Time, interval, grace time.Duration) Result {
	if lastSeen == nil {
		return Result{Status: domain.CheckStatusDown, Reason: "No heartbeat received yet"}
	}
	if now.Sub(*lastSeen) > interval+grace {
		return Result{
			Status: domain.CheckStatusDown,
			Reason: fmt.Sprintf("No heartbeat in %ds (expected every %ds)",
				int(now.Sub(*lastSeen).Seconds()), int(interval.Seconds())),
		}
	}
	return Result{Status: domain.CheckStatusUp}
}

func (p *Prober) checkHeartbeat(ctx context.Context, job domain.CheckJob) (Result, error) {
	cfg, err := parseConfig(job.ExternalConfig, heartbeatConfig{})
	if err != nil {
		return Result{Status: domain.CheckStatusDown, Reason: "Invalid monitor config"}, nil
	}
	if p.heartbeats == nil {
		return Result{}, fmt.Errorf("heartbeat source not configured")
	}

	lastSeen, err := p.heartbeats.LastHeartbeat(ctx, job.MonitorID)
	if err != nil {
		return Result{}, fmt.Errorf("get last heartbeat: %w", err)
	}

	interval := p.config.Bounds.ClampInterval(job.IntervalSeconds)
	grace := time.Duration(max(cfg.GraceSeconds, 0)) * time.Second
	return HeartbeatStatus(p.now(), lastSeen, interval, grace), nil
}

func withDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
