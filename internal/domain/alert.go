package domain

type ChannelType string

const (
	ChannelTypeWebhook ChannelType = "webhook"
)

type NotificationChannel struct {
	ID      string
	TeamID  string
	Type    ChannelType
	URL     string
	Enabled bool
}

// AlertTarget is a notification policy joined with its channel.
type AlertTarget struct {
	PolicyID          string
	NotifyOnRecovery  bool
	ThresholdFailures int
	Channel           NotificationChannel
}
