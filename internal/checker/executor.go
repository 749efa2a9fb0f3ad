// Package checker turns probe results into monitor state, incident
// transitions and alert jobs.
package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
	"github.com/bissquit/uptime-garden/internal/probe"
	"github.com/bissquit/uptime-garden/internal/queue"
	"github.com/google/uuid"
)

const recoveredReason = "Recovered"

// alertNamespace seeds deterministic alert ids so a redelivered check job
// produces the same alert id.
var alertNamespace = uuid.MustParse("6f0b8e4a-3c1d-4f7e-9a52-1d2e3f4a5b6c")

// Prober runs a single check.
type Prober interface {
	Probe(ctx context.Context, job domain.CheckJob) (probe.Result, error)
}

// Transitioner opens and resolves monitor incidents.
type Transitioner interface {
	Transition(ctx context.Context, req domain.TransitionRequest) (domain.TransitionResult, error)
}

// Executor handles check jobs.
type Executor struct {
	prober      Prober
	states      StateStore
	coordinator Transitioner
	alerts      queue.Publisher
	recorder    *Recorder
	bounds      domain.Bounds
	now         func() time.Time
}

// NewExecutor creates a new executor. recorder may be nil.
func NewExecutor(
	prober Prober,
	states StateStore,
	coordinator Transitioner,
	alerts queue.Publisher,
	recorder *Recorder,
	bounds domain.Bounds,
) *Executor {
	return &Executor{
		prober:      prober,
		states:      states,
		coordinator: coordinator,
		alerts:      alerts,
		recorder:    recorder,
		bounds:      bounds,
		now:         time.Now,
	}
}

// HandleCheck probes the monitor, updates its state and drives incident
// transitions. Any returned error leaves the job for redelivery.
func (e *Executor) HandleCheck(ctx context.Context, job domain.CheckJob) error {
	ctx, logger := ctxlog.With(ctx, "monitor_id", job.MonitorID, "job_id", job.JobID)

	if job.MonitorType.IsPush() && job.ReportedStatus == "" {
		logger.Warn("push check without reported status, dropping")
		return nil
	}

	result, err := e.prober.Probe(ctx, job)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	checkedAt := e.now().UTC()
	latencyMS := int(result.Latency.Milliseconds())
	recordCheck(job.MonitorType, result)
	if e.recorder != nil {
		e.recorder.Record(domain.CheckEvent{
			MonitorID: job.MonitorID,
			TeamID:    job.TeamID,
			Type:      job.MonitorType,
			Status:    result.Status,
			LatencyMS: latencyMS,
			Reason:    result.Reason,
			CheckedAt: checkedAt,
		})
	}

	prev, err := e.states.GetState(ctx, job.MonitorID)
	if err != nil {
		return fmt.Errorf("get monitor state: %w", err)
	}

	var prevFailures int
	var incidentOpen bool
	if prev != nil {
		prevFailures = prev.ConsecutiveFailures
		incidentOpen = prev.IncidentOpen
	}

	failures := NextFailures(prevFailures, result.Status)
	state := domain.MonitorState{
		MonitorID:           job.MonitorID,
		TeamID:              job.TeamID,
		LastCheckedAt:       &checkedAt,
		LastStatus:          result.Status,
		LastLatencyMS:       latencyMS,
		ConsecutiveFailures: failures,
		IncidentOpen:        incidentOpen,
	}
	if result.Status == domain.CheckStatusDown {
		state.LastError = result.Reason
	}
	if err := e.states.UpsertState(ctx, state); err != nil {
		return fmt.Errorf("upsert monitor state: %w", err)
	}

	logger.Debug("check completed",
		"status", result.Status,
		"reason", result.Reason,
		"consecutive_failures", failures,
		"incident_open", incidentOpen,
	)

	threshold := e.bounds.ClampThreshold(job.FailureThreshold)
	switch {
	case result.Status == domain.CheckStatusDown && failures >= threshold && !incidentOpen:
		return e.transition(ctx, job, domain.CheckStatusDown, result.Reason)
	case result.Status == domain.CheckStatusUp && incidentOpen:
		return e.transition(ctx, job, domain.CheckStatusUp, recoveredReason)
	}
	return nil
}

func (e *Executor) transition(ctx context.Context, job domain.CheckJob, status domain.CheckStatus, reason string) error {
	res, err := e.coordinator.Transition(ctx, domain.TransitionRequest{
		TeamID:    job.TeamID,
		MonitorID: job.MonitorID,
		Status:    status,
		Reason:    reason,
	})
	if err != nil {
		return fmt.Errorf("transition monitor %s: %w", status, err)
	}

	ctxlog.FromContext(ctx).Info("monitor transition",
		"status", status,
		"action", res.Action,
		"incident_id", res.IncidentID,
	)

	alert := domain.AlertJob{
		AlertID:    AlertID(job.JobID, status),
		TeamID:     job.TeamID,
		MonitorID:  job.MonitorID,
		Status:     status,
		Reason:     reason,
		IncidentID: res.IncidentID,
	}
	err = e.alerts.Publish(ctx, queue.TopicAlerts, alert)
	queue.RecordPublished(queue.TopicAlerts, err)
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// NextFailures returns the consecutive failure count after a check.
func NextFailures(prev int, status domain.CheckStatus) int {
	if status == domain.CheckStatusDown {
		return prev + 1
	}
	return 0
}

// AlertID derives the alert id for a check job transition.
func AlertID(jobID string, status domain.CheckStatus) string {
	if jobID == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(alertNamespace, []byte(jobID+":"+string(status))).String()
}
