// Package alerts delivers monitor transition alerts to notification channels.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
)

// Dispatcher fans an alert job out to the monitor's notification policies.
type Dispatcher struct {
	repo    Repository
	senders map[domain.ChannelType]Sender
	now     func() time.Time
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(repo Repository, senders ...Sender) *Dispatcher {
	m := make(map[domain.ChannelType]Sender, len(senders))
	for _, s := range senders {
		m[s.Type()] = s
	}
	return &Dispatcher{
		repo:    repo,
		senders: m,
		now:     time.Now,
	}
}

// HandleAlert delivers job to every matching channel. Channels that already
// received this alert id are skipped, so a redelivered job only retries the
// channels that failed. Any delivery failure is returned after all channels
// were attempted.
func (d *Dispatcher) HandleAlert(ctx context.Context, job domain.AlertJob) error {
	ctx, logger := ctxlog.With(ctx, "alert_id", job.AlertID, "monitor_id", job.MonitorID)

	targets, err := d.repo.ListAlertTargets(ctx, job.MonitorID)
	if err != nil {
		return fmt.Errorf("list alert targets: %w", err)
	}
	if len(targets) == 0 {
		return nil
	}

	if job.Status == domain.CheckStatusDown {
		suppressed, err := d.repo.MonitorSuppressed(ctx, job.MonitorID, d.now())
		if err != nil {
			return fmt.Errorf("check suppressions: %w", err)
		}
		if suppressed {
			logger.Info("alert suppressed")
			suppressedTotal.Inc()
			return nil
		}
	}

	var errs []error
	for _, target := range targets {
		if job.Status == domain.CheckStatusUp && !target.NotifyOnRecovery {
			continue
		}
		if err := d.deliver(ctx, target.Channel, job); err != nil {
			logger.Warn("alert delivery failed", "channel_id", target.Channel.ID, "error", err)
			errs = append(errs, fmt.Errorf("channel %s: %w", target.Channel.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) deliver(ctx context.Context, channel domain.NotificationChannel, job domain.AlertJob) error {
	channelType := string(channel.Type)

	sender, ok := d.senders[channel.Type]
	if !ok {
		ctxlog.FromContext(ctx).Warn("no sender for channel type", "channel_id", channel.ID, "type", channelType)
		recordDelivery(channelType, "unsupported")
		return nil
	}

	delivered, err := d.repo.IsDelivered(ctx, job.AlertID, channel.ID)
	if err != nil {
		return fmt.Errorf("check delivery: %w", err)
	}
	if delivered {
		recordDelivery(channelType, "duplicate")
		return nil
	}

	start := time.Now()
	err = sender.Send(ctx, channel, job)
	recordSendDuration(channelType, time.Since(start))
	if err != nil {
		recordDelivery(channelType, "failed")
		return err
	}
	recordDelivery(channelType, "sent")

	if err := d.repo.MarkDelivered(ctx, job.AlertID, channel.ID); err != nil {
		// The alert is out; a redelivery may repeat it.
		ctxlog.FromContext(ctx).Error("failed to record delivery", "channel_id", channel.ID, "error", err)
	}
	return nil
}
