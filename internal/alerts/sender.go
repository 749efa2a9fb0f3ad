package alerts

import (
	"context"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// Sender delivers an alert over one channel type.
type Sender interface {
	Type() domain.ChannelType
	Send(ctx context.Context, channel domain.NotificationChannel, alert domain.AlertJob) error
}
