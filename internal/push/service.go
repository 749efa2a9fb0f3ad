// Package push accepts status reports and heartbeats from monitored systems.
package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
	"github.com/bissquit/uptime-garden/internal/queue"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Push errors.
var (
	ErrMonitorNotFound = errors.New("monitor not found")
	ErrInvalidToken    = errors.New("invalid push token")
	ErrWrongType       = errors.New("monitor does not accept this kind of report")
)

// Report is a status pushed by the monitored system.
type Report struct {
	Status string `json:"status" validate:"required,oneof=up down degraded"`
	Reason string `json:"reason" validate:"max=1024"`
}

// Service validates push tokens and turns reports into check jobs.
type Service struct {
	repo      Repository
	publisher queue.Publisher
	now       func() time.Time
}

// NewService creates a new push service.
func NewService(repo Repository, publisher queue.Publisher) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
	}
}

// Report enqueues a check job carrying the reported status of a webhook or
// manual monitor.
func (s *Service) Report(ctx context.Context, monitorID, token string, report Report) (string, error) {
	m, err := s.authenticate(ctx, monitorID, token)
	if err != nil {
		recordReport("report", "rejected")
		return "", err
	}
	if !m.Type.IsPush() {
		recordReport("report", "rejected")
		return "", ErrWrongType
	}

	job := domain.CheckJob{
		JobID:            uuid.NewString(),
		TeamID:           m.TeamID,
		MonitorID:        m.ID,
		MonitorType:      m.Type,
		IntervalSeconds:  m.IntervalSeconds,
		TimeoutMS:        m.TimeoutMS,
		FailureThreshold: m.FailureThreshold,
		ReportedStatus:   report.Status,
		ReportedReason:   report.Reason,
	}
	if err := s.publisher.Publish(ctx, queue.TopicChecks, job); err != nil {
		recordReport("report", "error")
		return "", fmt.Errorf("enqueue check job: %w", err)
	}

	ctxlog.FromContext(ctx).Debug("push report accepted",
		"monitor_id", m.ID, "job_id", job.JobID, "status", report.Status)
	recordReport("report", "accepted")
	return job.JobID, nil
}

// Heartbeat records a check-in of a heartbeat monitor.
func (s *Service) Heartbeat(ctx context.Context, monitorID, token string) (time.Time, error) {
	m, err := s.authenticate(ctx, monitorID, token)
	if err != nil {
		recordReport("heartbeat", "rejected")
		return time.Time{}, err
	}
	if m.Type != domain.MonitorTypeHeartbeat {
		recordReport("heartbeat", "rejected")
		return time.Time{}, ErrWrongType
	}

	at := s.now().UTC()
	if err := s.repo.RecordHeartbeat(ctx, m.ID, at); err != nil {
		recordReport("heartbeat", "error")
		return time.Time{}, fmt.Errorf("record heartbeat: %w", err)
	}
	recordReport("heartbeat", "accepted")
	return at, nil
}

// authenticate loads an enabled monitor and checks token against its hash.
// Monitors without a token never authenticate.
func (s *Service) authenticate(ctx context.Context, monitorID, token string) (*domain.Monitor, error) {
	m, err := s.repo.GetMonitor(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	if !m.Enabled {
		return nil, ErrMonitorNotFound
	}
	if m.PushTokenHash == "" || token == "" {
		return nil, ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PushTokenHash), []byte(token)); err != nil {
		return nil, ErrInvalidToken
	}
	return m, nil
}

// HashToken returns the bcrypt hash stored for a push token.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}
