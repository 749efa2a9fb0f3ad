package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/bissquit/uptime-garden/internal/domain"
)

type dnsConfig struct {
	RecordType       string `json:"recordType"`
	ExpectedIncludes string `json:"expectedIncludes"`
}

func (p *Prober) checkDNS(ctx context.Context, job domain.CheckJob) Result {
	cfg, err := parseConfig(job.ExternalConfig, dnsConfig{RecordType: "A"})
	if err != nil {
		return down("Invalid monitor config", 0)
	}

	host, ok := targetHost(job.URL)
	if !ok {
		return down("Invalid target", 0)
	}

	recordType := strings.ToUpper(cfg.RecordType)
	start := p.now()
	answers, err := p.lookup(ctx, recordType, host)
	latency := p.now().Sub(start)
	if err != nil {
		return down(classifyError(err), latency)
	}
	if len(answers) == 0 {
		return down(fmt.Sprintf("No %s records", recordType), latency)
	}

	if cfg.ExpectedIncludes != "" {
		for _, answer := range answers {
			if strings.Contains(answer, cfg.ExpectedIncludes) {
				return up(latency)
			}
		}
		return down(fmt.Sprintf("DNS answer does not include %q", cfg.ExpectedIncludes), latency)
	}
	return up(latency)
}

func (p *Prober) lookup(ctx context.Context, recordType, host string) ([]string, error) {
	var answers []string
	switch recordType {
	case "A", "AAAA":
		addrs, err := p.resolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, err
		}
		for _, addr := range addrs {
			isV4 := addr.IP.To4() != nil
			if isV4 == (recordType == "A") {
				answers = append(answers, addr.IP.String())
			}
		}
	case "CNAME":
		cname, err := p.resolver.LookupCNAME(ctx, host)
		if err != nil {
			return nil, err
		}
		if cname != "" {
			answers = append(answers, cname)
		}
	case "TXT":
		txt, err := p.resolver.LookupTXT(ctx, host)
		if err != nil {
			return nil, err
		}
		answers = txt
	case "MX":
		records, err := p.resolver.LookupMX(ctx, host)
		if err != nil {
			return nil, err
		}
		for _, mx := range records {
			answers = append(answers, mx.Host)
		}
	case "NS":
		records, err := p.resolver.LookupNS(ctx, host)
		if err != nil {
			return nil, err
		}
		for _, ns := range records {
			answers = append(answers, ns.Host)
		}
	default:
		return nil, fmt.Errorf("unsupported record type %q", recordType)
	}
	return answers, nil
}
