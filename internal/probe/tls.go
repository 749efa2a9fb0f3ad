package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
)

const defaultMinDaysRemaining = 14

type tlsConfig struct {
	MinDaysRemaining int  `json:"minDaysRemaining"`
	AllowInvalid     bool `json:"allowInvalid"`
}

func (p *Prober) checkTLS(ctx context.Context, job domain.CheckJob) Result {
	cfg, err := parseConfig(job.ExternalConfig, tlsConfig{MinDaysRemaining: defaultMinDaysRemaining})
	if err != nil {
		return down("Invalid monitor config", 0)
	}

	host, port, ok := ParseTargetHostPort(job.URL, 443)
	if !ok {
		return down("Invalid target", 0)
	}

	dialer := &tls.Dialer{
		NetDialer: p.dialer,
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: cfg.AllowInvalid, //nolint:gosec // opt-in per monitor
			MinVersion:         tls.VersionTLS12,
		},
	}

	start := p.now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return down(classifyError(err), p.now().Sub(start))
	}
	defer func() { _ = conn.Close() }()
	latency := p.now().Sub(start)

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return down("TLS handshake failed", latency)
	}
	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return down("No peer certificate", latency)
	}

	days := daysRemaining(certs[0].NotAfter, p.now())
	if days < 0 {
		return down("TLS certificate expired", latency)
	}
	if days < cfg.MinDaysRemaining {
		return down(fmt.Sprintf("TLS certificate expires in %dd", days), latency)
	}
	return up(latency)
}

func daysRemaining(notAfter, now time.Time) int {
	return int(math.Floor(notAfter.Sub(now).Hours() / 24))
}
