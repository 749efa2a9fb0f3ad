package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bissquit/uptime-garden/internal/domain"
)

const cloudflareStatusURL = "https://www.cloudflarestatus.com/api/v2/status.json"

type externalConfig struct {
	ServiceType string `json:"serviceType"`
	StatusURL   string `json:"statusUrl"`
}

// statuspage.io summary format
type statusSummary struct {
	Status *struct {
		Indicator string `json:"indicator"`
	} `json:"status"`
}

// checkExternal probes a third-party status endpoint. Statuspage-style
// documents are judged by status.indicator; anything else by HTTP status.
func (p *Prober) checkExternal(ctx context.Context, job domain.CheckJob) Result {
	cfg, err := parseConfig(job.ExternalConfig, externalConfig{})
	if err != nil {
		return down("Invalid external config", 0)
	}

	label := "Status"
	target := cfg.StatusURL
	if target == "" {
		target = job.URL
	}
	if strings.HasPrefix(cfg.ServiceType, "cloudflare-") {
		label = "Cloudflare status"
		target = cloudflareStatusURL
	}

	start := p.now()
	resp, err := p.get(ctx, target, "application/json")
	if err != nil {
		return down(classifyError(err), p.now().Sub(start))
	}
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		return down(fmt.Sprintf("%s API returned %d", label, resp.StatusCode), p.now().Sub(start))
	}

	body, err := p.readBody(resp)
	if err != nil {
		return down(classifyError(err), p.now().Sub(start))
	}
	latency := p.now().Sub(start)

	var summary statusSummary
	if err := json.Unmarshal([]byte(body), &summary); err != nil || summary.Status == nil {
		return up(latency)
	}

	switch summary.Status.Indicator {
	case "none", "minor":
		return up(latency)
	case "":
		return down(label+": unknown", latency)
	default:
		return down(fmt.Sprintf("%s: %s", label, summary.Status.Indicator), latency)
	}
}
