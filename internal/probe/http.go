package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/bissquit/uptime-garden/internal/domain"
)

type httpAssertConfig struct {
	ExpectedStatus []int  `json:"expectedStatus"`
	BodyIncludes   string `json:"bodyIncludes"`
}

type keywordConfig struct {
	Keyword       string `json:"keyword"`
	CaseSensitive bool   `json:"caseSensitive"`
}

// parseConfig decodes a monitor's external config over defaults.
func parseConfig[T any](raw json.RawMessage, defaults T) (T, error) {
	cfg := defaults
	if len(raw) == 0 || string(raw) == "null" {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return defaults, err
	}
	return cfg, nil
}

func (p *Prober) get(ctx context.Context, target string, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.config.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return p.client.Do(req)
}

func (p *Prober) readBody(resp *http.Response) (string, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, p.config.MaxBodyBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func (p *Prober) checkHTTP(ctx context.Context, job domain.CheckJob) Result {
	start := p.now()
	resp, err := p.get(ctx, job.URL, "")
	if err != nil {
		return down(classifyError(err), p.now().Sub(start))
	}
	defer func() { _ = resp.Body.Close() }()
	latency := p.now().Sub(start)

	if !isSuccess(resp.StatusCode) {
		return down(fmt.Sprintf("HTTP %d", resp.StatusCode), latency)
	}
	return up(latency)
}

func (p *Prober) checkHTTPAssert(ctx context.Context, job domain.CheckJob) Result {
	cfg, err := parseConfig(job.ExternalConfig, httpAssertConfig{})
	if err != nil {
		return down("Invalid monitor config", 0)
	}

	start := p.now()
	resp, err := p.get(ctx, job.URL, "")
	if err != nil {
		return down(classifyError(err), p.now().Sub(start))
	}
	defer func() { _ = resp.Body.Close() }()

	if len(cfg.ExpectedStatus) > 0 {
		if !slices.Contains(cfg.ExpectedStatus, resp.StatusCode) {
			return down(fmt.Sprintf("HTTP %d (expected %s)", resp.StatusCode, joinInts(cfg.ExpectedStatus)), p.now().Sub(start))
		}
	} else if !isSuccess(resp.StatusCode) {
		return down(fmt.Sprintf("HTTP %d", resp.StatusCode), p.now().Sub(start))
	}

	if cfg.BodyIncludes != "" {
		body, err := p.readBody(resp)
		if err != nil {
			return down(classifyError(err), p.now().Sub(start))
		}
		if !strings.Contains(body, cfg.BodyIncludes) {
			return down(fmt.Sprintf("Response body does not include %q", cfg.BodyIncludes), p.now().Sub(start))
		}
	}

	return up(p.now().Sub(start))
}

func (p *Prober) checkHTTPKeyword(ctx context.Context, job domain.CheckJob) Result {
	cfg, err := parseConfig(job.ExternalConfig, keywordConfig{})
	if err != nil {
		return down("Invalid monitor config", 0)
	}

	start := p.now()
	resp, err := p.get(ctx, job.URL, "")
	if err != nil {
		return down(classifyError(err), p.now().Sub(start))
	}
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		return down(fmt.Sprintf("HTTP %d", resp.StatusCode), p.now().Sub(start))
	}
	if cfg.Keyword == "" {
		return up(p.now().Sub(start))
	}

	body, err := p.readBody(resp)
	if err != nil {
		return down(classifyError(err), p.now().Sub(start))
	}

	found := strings.Contains(body, cfg.Keyword)
	if !cfg.CaseSensitive {
		found = strings.Contains(strings.ToLower(body), strings.ToLower(cfg.Keyword))
	}
	if !found {
		return down(fmt.Sprintf("Keyword %q not found", cfg.Keyword), p.now().Sub(start))
	}
	return up(p.now().Sub(start))
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
