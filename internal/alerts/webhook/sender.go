// Package webhook delivers alerts as JSON POST requests.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/version"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 8 * time.Second
	maxErrorBody   = 512
)

var defaultUserAgent = version.UserAgent("uptime-garden-notifier")

// Config holds webhook sender configuration.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	// RateLimit is the number of requests per second across all webhooks.
	// Zero disables limiting.
	RateLimit float64
	Burst     int
}

// Sender implements alerts.Sender for webhook channels.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewSender creates a new webhook sender.
func NewSender(config Config) *Sender {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(limit, config.Burst),
		now:        time.Now,
	}
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeWebhook
}

type payload struct {
	AlertID    string             `json:"alert_id"`
	Type       string             `json:"type"`
	TeamID     string             `json:"team_id"`
	MonitorID  string             `json:"monitor_id"`
	Status     domain.CheckStatus `json:"status"`
	Reason     string             `json:"reason,omitempty"`
	IncidentID string             `json:"incident_id,omitempty"`
	Summary    string             `json:"summary"`
	Timestamp  time.Time          `json:"ts"`
}

// Send posts the alert to the channel URL. Channels with a missing or
// non-http(s) URL are skipped.
func (s *Sender) Send(ctx context.Context, channel domain.NotificationChannel, alert domain.AlertJob) error {
	if !validURL(channel.URL) {
		slog.Warn("skipping webhook with invalid url", "channel_id", channel.ID, "url", maskURL(channel.URL))
		return nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(payload{
		AlertID:    alert.AlertID,
		Type:       "monitor",
		TeamID:     alert.TeamID,
		MonitorID:  alert.MonitorID,
		Status:     alert.Status,
		Reason:     alert.Reason,
		IncidentID: alert.IncidentID,
		Summary:    Summary(alert),
		Timestamp:  s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, channel.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Idempotency-Key", alert.AlertID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &DeliveryError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DeliveryError{Code: resp.StatusCode, Message: string(respBody)}
	}

	slog.Debug("webhook alert sent", "channel_id", channel.ID, "url", maskURL(channel.URL))
	return nil
}

// Summary renders a one-line human readable description of the alert.
func Summary(alert domain.AlertJob) string {
	if alert.Status == domain.CheckStatusUp {
		return "Monitor Recovered"
	}
	if alert.Reason == "" {
		return "Monitor Down"
	}
	return "Monitor Down: " + alert.Reason
}

func validURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// maskURL hides part of the URL for logging.
func maskURL(u string) string {
	if len(u) > 40 {
		return u[:20] + "..." + u[len(u)-10:]
	}
	return u
}

// DeliveryError is a failed webhook request. It is always retryable.
type DeliveryError struct {
	Code    int
	Message string
}

func (e *DeliveryError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webhook error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webhook error: %s", e.Message)
}

// IsRetryable returns true; the queue redelivers the alert job.
func (e *DeliveryError) IsRetryable() bool { return true }
