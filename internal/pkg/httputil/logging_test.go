package httputil

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestLoggerMiddleware_Levels(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel string
	}{
		{"regular request", "/api/v1/status/acme", http.StatusOK, "level=INFO"},
		{"health probe", "/healthz", http.StatusOK, "level=DEBUG"},
		{"server error", "/api/v1/status/acme", http.StatusServiceUnavailable, "level=WARN"},
		{"failing readiness", "/readyz", http.StatusServiceUnavailable, "level=WARN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			handler := RequestLoggerMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Contains(t, buf.String(), tt.wantLevel)
			assert.Contains(t, buf.String(), "path="+tt.path)
		})
	}
}
