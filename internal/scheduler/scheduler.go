// Package scheduler dispatches due monitors to the check queue using
// time-bounded leases so that concurrent scheduler instances never enqueue
// the same monitor twice for one interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/queue"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Config contains scheduler configuration.
type Config struct {
	Spec       string
	LeaseTTL   time.Duration
	BatchSize  int
	MaxBatches int
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Spec:       "@every 30s",
		LeaseTTL:   90 * time.Second,
		BatchSize:  200,
		MaxBatches: 5,
	}
}

// TickResult summarizes one scheduling tick.
type TickResult struct {
	Batches       int
	Enqueued      int
	Skipped       int
	EnqueueFailed int
}

// Scheduler claims due monitors and publishes check jobs.
type Scheduler struct {
	config    Config
	repo      Repository
	publisher queue.Publisher
	bounds    domain.Bounds
	now       func() time.Time

	cron    *cron.Cron
	stopCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
}

// New creates a new scheduler.
func New(config Config, repo Repository, publisher queue.Publisher, bounds domain.Bounds) *Scheduler {
	return &Scheduler{
		config:    config,
		repo:      repo,
		publisher: publisher,
		bounds:    bounds,
		now:       time.Now,
	}
}

// Start runs Tick on the configured cron spec. Overlapping ticks in one
// process are skipped; other instances are handled by leases.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := cronLogger{logger: slog.Default().With("component", "scheduler")}
	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s.stopCtx, s.cancel = context.WithCancel(context.Background())

	_, err := s.cron.AddFunc(s.config.Spec, func() {
		ctx, cancel := context.WithTimeout(s.stopCtx, s.config.LeaseTTL)
		defer cancel()
		if _, err := s.Tick(ctx); err != nil {
			slog.Error("scheduler tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("add scheduler job: %w", err)
	}

	slog.Info("starting scheduler",
		"spec", s.config.Spec,
		"lease_ttl", s.config.LeaseTTL,
		"batch_size", s.config.BatchSize,
		"max_batches", s.config.MaxBatches,
	)
	s.cron.Start()
	return nil
}

// Stop waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cancel()
	s.cron = nil
	slog.Info("scheduler stopped")
}

// Tick runs up to MaxBatches rounds of claim, enqueue and release.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	var result TickResult
	start := time.Now()
	defer func() { recordTick(result, time.Since(start)) }()

	// Postgres stores microseconds; the lease must round-trip exactly.
	now := s.now().UTC().Truncate(time.Microsecond)

	for batch := 0; batch < s.config.MaxBatches; batch++ {
		due, err := s.repo.DueMonitors(ctx, now, s.config.BatchSize)
		if err != nil {
			return result, fmt.Errorf("list due monitors: %w", err)
		}

		slog.Debug("scheduler batch", "batch", batch+1, "due", len(due))
		if len(due) == 0 {
			break
		}
		result.Batches++

		for i := range due {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			outcome, err := s.dispatch(ctx, &due[i], now)
			if err != nil {
				return result, err
			}
			switch outcome {
			case outcomeEnqueued:
				result.Enqueued++
			case outcomeSkipped:
				result.Skipped++
			case outcomeEnqueueFailed:
				result.EnqueueFailed++
			}
		}
	}

	return result, nil
}

type outcome int

const (
	outcomeEnqueued outcome = iota
	outcomeSkipped
	outcomeEnqueueFailed
)

func (s *Scheduler) dispatch(ctx context.Context, m *domain.Monitor, now time.Time) (outcome, error) {
	lease := now.Add(s.config.LeaseTTL)

	claimed, err := s.repo.Claim(ctx, m.ID, now, lease)
	if err != nil {
		return 0, fmt.Errorf("claim monitor %s: %w", m.ID, err)
	}
	if !claimed {
		slog.Debug("monitor already claimed, skipping", "monitor_id", m.ID)
		return outcomeSkipped, nil
	}

	job := s.buildJob(m)
	if err := s.publisher.Publish(ctx, queue.TopicChecks, job); err != nil {
		slog.Error("failed to enqueue check job", "monitor_id", m.ID, "error", err)
		if _, unlockErr := s.repo.Unlock(ctx, m.ID, lease); unlockErr != nil {
			// The lease expires on its own after LeaseTTL.
			slog.Error("failed to unlock monitor", "monitor_id", m.ID, "error", unlockErr)
		}
		return outcomeEnqueueFailed, nil
	}

	nextRun := now.Add(s.bounds.ClampInterval(m.IntervalSeconds))
	released, err := s.repo.Release(ctx, m.ID, lease, nextRun)
	if err != nil {
		// The job is already queued; the lease lapses and the next run is
		// at most one lease late.
		slog.Error("failed to release monitor", "monitor_id", m.ID, "error", err)
		return outcomeEnqueued, nil
	}
	if !released {
		slog.Warn("lease changed before release", "monitor_id", m.ID)
	}

	slog.Debug("check job enqueued",
		"monitor_id", m.ID,
		"job_id", job.JobID,
		"next_run_at", nextRun,
	)
	return outcomeEnqueued, nil
}

func (s *Scheduler) buildJob(m *domain.Monitor) domain.CheckJob {
	return domain.CheckJob{
		JobID:            uuid.NewString(),
		TeamID:           m.TeamID,
		MonitorID:        m.ID,
		MonitorType:      m.Type,
		URL:              m.URL,
		IntervalSeconds:  m.IntervalSeconds,
		TimeoutMS:        int(s.bounds.ClampTimeout(m.TimeoutMS).Milliseconds()),
		FailureThreshold: s.bounds.ClampThreshold(m.FailureThreshold),
		ExternalConfig:   m.ExternalConfig,
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
