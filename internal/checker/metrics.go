package checker

import (
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/probe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "uptimegarden"

var (
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "checks_total",
			Help:      "Total checks by monitor type and status",
		},
		[]string{"type", "status"},
	)

	checkLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "check_latency_seconds",
			Help:      "Measured probe latency",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"type"},
	)

	eventsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "events_written_total",
			Help:      "Check events persisted",
		},
	)

	eventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "events_dropped_total",
			Help:      "Check events dropped because the buffer was full or the write failed",
		},
	)
)

func recordCheck(monitorType domain.MonitorType, r probe.Result) {
	checksTotal.WithLabelValues(string(monitorType), string(r.Status)).Inc()
	if r.Measured {
		checkLatency.WithLabelValues(string(monitorType)).Observe(r.Latency.Seconds())
	}
}
