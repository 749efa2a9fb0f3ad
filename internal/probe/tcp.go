package probe

import (
	"context"
	"net"
	"strconv"

	"github.com/bissquit/uptime-garden/internal/domain"
)

func (p *Prober) checkTCP(ctx context.Context, job domain.CheckJob) Result {
	host, port, ok := ParseTargetHostPort(job.URL, 80)
	if !ok {
		return down("Invalid target", 0)
	}

	start := p.now()
	conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	latency := p.now().Sub(start)
	if err != nil {
		return down(classifyError(err), latency)
	}
	_ = conn.Close()
	return up(latency)
}
