package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "uptimegarden"

var (
	monitorsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "monitors_total",
			Help:      "Monitors seen by the scheduler by outcome",
		},
		[]string{"outcome"},
	)

	tickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a scheduling tick",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

func recordTick(r TickResult, d time.Duration) {
	monitorsDispatched.WithLabelValues("enqueued").Add(float64(r.Enqueued))
	monitorsDispatched.WithLabelValues("skipped").Add(float64(r.Skipped))
	monitorsDispatched.WithLabelValues("enqueue_failed").Add(float64(r.EnqueueFailed))
	tickDuration.Observe(d.Seconds())
}
