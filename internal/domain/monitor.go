package domain

import (
	"encoding/json"
	"time"
)

type MonitorType string

const (
	MonitorTypeHTTP        MonitorType = "http"
	MonitorTypeHTTPAssert  MonitorType = "http_assert"
	MonitorTypeHTTPKeyword MonitorType = "http_keyword"
	MonitorTypeTLS         MonitorType = "tls"
	MonitorTypeDNS         MonitorType = "dns"
	MonitorTypeTCP         MonitorType = "tcp"
	MonitorTypeHeartbeat   MonitorType = "heartbeat"
	MonitorTypeExternal    MonitorType = "external"
	MonitorTypeWebhook     MonitorType = "webhook"
	MonitorTypeManual      MonitorType = "manual"
)

// IsPush reports whether the monitor receives its status from an external
// reporter instead of being probed by the scheduler.
func (t MonitorType) IsPush() bool {
	return t == MonitorTypeWebhook || t == MonitorTypeManual
}

// IsValid checks if the monitor type is known.
func (t MonitorType) IsValid() bool {
	switch t {
	case MonitorTypeHTTP, MonitorTypeHTTPAssert, MonitorTypeHTTPKeyword,
		MonitorTypeTLS, MonitorTypeDNS, MonitorTypeTCP, MonitorTypeHeartbeat,
		MonitorTypeExternal, MonitorTypeWebhook, MonitorTypeManual:
		return true
	}
	return false
}

type Monitor struct {
	ID               string
	TeamID           string
	Name             string
	Type             MonitorType
	URL              string
	IntervalSeconds  int
	TimeoutMS        int
	FailureThreshold int
	Enabled          bool
	ExternalConfig   json.RawMessage
	PushTokenHash    string
	LastHeartbeatAt  *time.Time
	NextRunAt        time.Time
	LockedUntil      time.Time
}

type CheckStatus string

const (
	CheckStatusUp      CheckStatus = "up"
	CheckStatusDown    CheckStatus = "down"
	CheckStatusUnknown CheckStatus = "unknown"
)

// MonitorState is the rolling point-in-time health of a monitor.
type MonitorState struct {
	MonitorID           string
	TeamID              string
	LastCheckedAt       *time.Time
	LastStatus          CheckStatus
	LastLatencyMS       int
	ConsecutiveFailures int
	LastError           string
	IncidentOpen        bool
}

// CheckEvent is a raw probe outcome kept for analytics.
type CheckEvent struct {
	MonitorID string
	TeamID    string
	Type      MonitorType
	Status    CheckStatus
	LatencyMS int
	Reason    string
	CheckedAt time.Time
}
