// Package incidents owns the open/resolve lifecycle of monitor incidents.
// Every transition for a monitor goes through Coordinator, which admits one
// transition per monitor at a time.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
	"github.com/jackc/pgx/v5"
)

const (
	incidentTitle      = "Monitor down"
	defaultOpenMessage = "Automated monitoring detected an outage."
	resolvedMessage    = "Service has recovered."
)

// ErrInvalidTransition is returned for requests with a status other than up or down.
var ErrInvalidTransition = errors.New("invalid transition request")

// ErrIncidentAlreadyOpen is returned when another writer opened an incident
// for the monitor concurrently. The request can be retried.
var ErrIncidentAlreadyOpen = errors.New("monitor already has an open incident")

// Rebuilder refreshes status snapshots after an incident changes.
type Rebuilder interface {
	RebuildTeam(ctx context.Context, teamID string) error
}

// Config contains coordinator configuration.
type Config struct {
	Shards         int
	RebuildTimeout time.Duration
}

// DefaultConfig returns default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		Shards:         256,
		RebuildTimeout: 30 * time.Second,
	}
}

// Coordinator applies incident transitions.
type Coordinator struct {
	config    Config
	repo      Repository
	rebuilder Rebuilder
	locks     *keyedMutex
	now       func() time.Time

	rebuilds sync.WaitGroup
}

// NewCoordinator creates a new coordinator. rebuilder may be nil.
func NewCoordinator(config Config, repo Repository, rebuilder Rebuilder) *Coordinator {
	return &Coordinator{
		config:    config,
		repo:      repo,
		rebuilder: rebuilder,
		locks:     newKeyedMutex(config.Shards),
		now:       time.Now,
	}
}

// Transition opens or resolves the monitor's incident:
//
//	down, none open -> opened
//	down, open      -> noop_already_open
//	up, open        -> resolved
//	up, none open   -> noop_no_open_incident
func (c *Coordinator) Transition(ctx context.Context, req domain.TransitionRequest) (domain.TransitionResult, error) {
	if req.Status != domain.CheckStatusUp && req.Status != domain.CheckStatusDown {
		return domain.TransitionResult{}, fmt.Errorf("%w: status %q", ErrInvalidTransition, req.Status)
	}

	unlock := c.locks.Lock(req.MonitorID)
	defer unlock()

	start := time.Now()
	result, err := c.apply(ctx, req)
	recordTransition(result.Action, err, time.Since(start))
	if err != nil {
		return domain.TransitionResult{}, err
	}

	ctxlog.FromContext(ctx).Info("incident transition",
		"monitor_id", req.MonitorID,
		"team_id", req.TeamID,
		"status", req.Status,
		"action", result.Action,
		"incident_id", result.IncidentID,
	)

	if result.Action.ChangesState() {
		c.rebuildAsync(req.TeamID)
	}
	return result, nil
}

func (c *Coordinator) apply(ctx context.Context, req domain.TransitionRequest) (domain.TransitionResult, error) {
	tx, err := c.repo.BeginTx(ctx)
	if err != nil {
		return domain.TransitionResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := c.repo.LockMonitorTx(ctx, tx, req.MonitorID); err != nil {
		return domain.TransitionResult{}, fmt.Errorf("lock monitor: %w", err)
	}

	open, err := c.repo.FindOpenIncidentTx(ctx, tx, req.MonitorID)
	if err != nil {
		return domain.TransitionResult{}, fmt.Errorf("find open incident: %w", err)
	}

	var result domain.TransitionResult
	switch {
	case req.Status == domain.CheckStatusDown && open != nil:
		result = domain.TransitionResult{OK: true, IncidentID: open.ID, Action: domain.TransitionNoopAlreadyOpen}
		// Repairs a flag that drifted from the incident row.
		if err := c.repo.SetIncidentOpenTx(ctx, tx, req.TeamID, req.MonitorID, true); err != nil {
			return domain.TransitionResult{}, fmt.Errorf("set incident open: %w", err)
		}

	case req.Status == domain.CheckStatusDown:
		incident := c.newIncident(req)
		if err := c.repo.CreateIncidentTx(ctx, tx, incident); err != nil {
			return domain.TransitionResult{}, fmt.Errorf("create incident: %w", err)
		}
		if err := c.repo.SetIncidentOpenTx(ctx, tx, req.TeamID, req.MonitorID, true); err != nil {
			return domain.TransitionResult{}, fmt.Errorf("set incident open: %w", err)
		}
		result = domain.TransitionResult{OK: true, IncidentID: incident.ID, Action: domain.TransitionOpened}

	case open != nil:
		update := &domain.IncidentUpdate{
			IncidentID: open.ID,
			Message:    resolvedMessage,
			Status:     domain.IncidentStatusResolved,
			CreatedAt:  c.now().UTC(),
		}
		if err := c.repo.ResolveIncidentTx(ctx, tx, open.ID, update); err != nil {
			return domain.TransitionResult{}, fmt.Errorf("resolve incident: %w", err)
		}
		if err := c.repo.SetIncidentOpenTx(ctx, tx, req.TeamID, req.MonitorID, false); err != nil {
			return domain.TransitionResult{}, fmt.Errorf("clear incident open: %w", err)
		}
		result = domain.TransitionResult{OK: true, IncidentID: open.ID, Action: domain.TransitionResolved}

	default:
		result = domain.TransitionResult{OK: true, Action: domain.TransitionNoopNoOpenIncident}
		if err := c.repo.SetIncidentOpenTx(ctx, tx, req.TeamID, req.MonitorID, false); err != nil {
			return domain.TransitionResult{}, fmt.Errorf("clear incident open: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.TransitionResult{}, fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}

func (c *Coordinator) newIncident(req domain.TransitionRequest) *domain.Incident {
	now := c.now().UTC()
	message := req.Reason
	if message == "" {
		message = defaultOpenMessage
	}
	return &domain.Incident{
		TeamID:    req.TeamID,
		MonitorID: req.MonitorID,
		Title:     incidentTitle,
		Status:    domain.IncidentStatusInvestigating,
		StartedAt: now,
		Updates: []domain.IncidentUpdate{{
			Message:   message,
			Status:    domain.IncidentStatusInvestigating,
			CreatedAt: now,
		}},
	}
}

func (c *Coordinator) rebuildAsync(teamID string) {
	if c.rebuilder == nil {
		return
	}

	c.rebuilds.Add(1)
	go func() {
		defer c.rebuilds.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.config.RebuildTimeout)
		defer cancel()

		if err := c.rebuilder.RebuildTeam(ctx, teamID); err != nil {
			slog.Error("failed to rebuild status snapshots", "team_id", teamID, "error", err)
		}
	}()
}

// Wait blocks until in-flight snapshot rebuilds finish.
func (c *Coordinator) Wait() {
	c.rebuilds.Wait()
}
