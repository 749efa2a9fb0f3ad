package probe

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ParseTargetHostPort extracts host and port from a URL, a host:port pair or
// a bare host. http and https URLs without an explicit port use 80 and 443;
// anything else without a port uses defaultPort.
func ParseTargetHostPort(target string, defaultPort int) (string, int, bool) {
	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return "", 0, false
	}

	if strings.Contains(trimmed, "://") {
		u, err := url.Parse(trimmed)
		if err != nil || u.Hostname() == "" {
			return "", 0, false
		}
		port := defaultPort
		switch {
		case u.Port() != "":
			p, err := strconv.Atoi(u.Port())
			if err != nil {
				return "", 0, false
			}
			port = p
		case u.Scheme == "http":
			port = 80
		case u.Scheme == "https":
			port = 443
		}
		if !validPort(port) {
			return "", 0, false
		}
		return u.Hostname(), port, true
	}

	if host, portStr, err := net.SplitHostPort(trimmed); err == nil && host != "" {
		if p, err := strconv.Atoi(portStr); err == nil && validPort(p) {
			return host, p, true
		}
	}

	return strings.Trim(trimmed, "[]"), defaultPort, true
}

// targetHost returns the host part of a URL or host[:port] target.
func targetHost(target string) (string, bool) {
	trimmed := strings.TrimSpace(target)
	if strings.Contains(trimmed, "://") {
		u, err := url.Parse(trimmed)
		if err != nil || u.Hostname() == "" {
			return "", false
		}
		return u.Hostname(), true
	}
	if host, _, err := net.SplitHostPort(trimmed); err == nil && host != "" {
		return host, true
	}
	host := strings.Trim(trimmed, "[]")
	return host, host != ""
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
