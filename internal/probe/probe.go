// Package probe runs a single bounded-time health check for a check job and
// classifies the outcome as up or down with a human-readable reason.
//
// Probe-level failures (timeouts, refused connections, failed assertions)
// never surface as errors; they become a down Result. Probe only returns an
// error for infrastructure problems such as a failing heartbeat store or a
// cancelled parent context.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/version"
)

const defaultMaxBodyBytes = 1 << 20

var defaultUserAgent = version.UserAgent("uptime-garden")

// Result is the classified outcome of one probe.
type Result struct {
	Status  domain.CheckStatus
	Reason  string
	Latency time.Duration
	// Measured is false for reported statuses, which have no latency.
	Measured bool
}

func up(latency time.Duration) Result {
	return Result{Status: domain.CheckStatusUp, Latency: latency, Measured: true}
}

func down(reason string, latency time.Duration) Result {
	return Result{Status: domain.CheckStatusDown, Reason: reason, Latency: latency, Measured: true}
}

// HeartbeatSource returns the last check-in time of a heartbeat monitor.
type HeartbeatSource interface {
	LastHeartbeat(ctx context.Context, monitorID string) (*time.Time, error)
}

// Resolver is the subset of net.Resolver used by DNS probes.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// Config contains prober configuration.
type Config struct {
	Bounds       domain.Bounds
	UserAgent    string
	MaxBodyBytes int64
}

// Prober executes probes.
type Prober struct {
	config     Config
	client     *http.Client
	resolver   Resolver
	dialer     *net.Dialer
	heartbeats HeartbeatSource
	now        func() time.Time
}

// New creates a new prober.
func New(config Config, heartbeats HeartbeatSource) *Prober {
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}
	if config.Bounds == (domain.Bounds{}) {
		config.Bounds = domain.DefaultBounds()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = true

	return &Prober{
		config:     config,
		client:     &http.Client{Transport: transport},
		resolver:   net.DefaultResolver,
		dialer:     &net.Dialer{},
		heartbeats: heartbeats,
		now:        time.Now,
	}
}

// Probe runs the check described by job.
func (p *Prober) Probe(ctx context.Context, job domain.CheckJob) (Result, error) {
	switch job.MonitorType {
	case domain.MonitorTypeWebhook, domain.MonitorTypeManual:
		return Reported(job.ReportedStatus, job.ReportedReason)
	case domain.MonitorTypeHeartbeat:
		return p.checkHeartbeat(ctx, job)
	}

	timeout := p.config.Bounds.ClampTimeout(job.TimeoutMS)
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := p.now()
	var result Result
	switch job.MonitorType {
	case domain.MonitorTypeHTTP, "":
		result = p.checkHTTP(probeCtx, job)
	case domain.MonitorTypeHTTPAssert:
		result = p.checkHTTPAssert(probeCtx, job)
	case domain.MonitorTypeHTTPKeyword:
		result = p.checkHTTPKeyword(probeCtx, job)
	case domain.MonitorTypeTLS:
		result = p.checkTLS(probeCtx, job)
	case domain.MonitorTypeDNS:
		result = p.checkDNS(probeCtx, job)
	case domain.MonitorTypeTCP:
		result = p.checkTCP(probeCtx, job)
	case domain.MonitorTypeExternal:
		result = p.checkExternal(probeCtx, job)
	default:
		result = down(fmt.Sprintf("Unsupported monitor type %q", job.MonitorType), 0)
	}

	// A cancelled job (shutdown) must not be recorded as an outage.
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("probe interrupted: %w", err)
	}

	if result.Latency == 0 {
		result.Latency = p.now().Sub(start)
	}
	return result, nil
}

// classifyError turns a probe error into a reason string.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return "Timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Timeout"
	}
	return err.Error()
}
