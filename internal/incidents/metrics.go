package incidents

import (
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "uptimegarden"

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "transitions_total",
			Help:      "Incident transitions by action",
		},
		[]string{"action"},
	)

	transitionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "transition_duration_seconds",
			Help:      "Time spent applying a transition, excluding lock wait",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func recordTransition(action domain.TransitionAction, err error, d time.Duration) {
	label := string(action)
	if err != nil {
		label = "error"
	}
	transitionsTotal.WithLabelValues(label).Inc()
	transitionDuration.Observe(d.Seconds())
}
