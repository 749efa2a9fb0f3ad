package push

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "uptimegarden"

var reportsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "push",
		Name:      "reports_total",
		Help:      "Pushed reports and heartbeats by outcome",
	},
	[]string{"kind", "outcome"},
)

func recordReport(kind, outcome string) {
	reportsTotal.WithLabelValues(kind, outcome).Inc()
}
