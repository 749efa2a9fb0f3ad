package statuspage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "uptimegarden"

var (
	rebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statuspage",
			Name:      "rebuilds_total",
			Help:      "Snapshot rebuilds by outcome",
		},
		[]string{"outcome"},
	)

	rebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "statuspage",
			Name:      "rebuild_duration_seconds",
			Help:      "Snapshot rebuild duration",
			Buckets:   prometheus.DefBuckets,
		},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statuspage",
			Name:      "cache_lookups_total",
			Help:      "Snapshot cache lookups by result (hit, miss, stale)",
		},
		[]string{"result"},
	)

	propagationPasses = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "statuspage",
			Name:      "propagation_passes",
			Help:      "Relaxation passes needed to propagate dependency status",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		},
	)
)

func recordRebuild(outcome string, d time.Duration) {
	rebuildsTotal.WithLabelValues(outcome).Inc()
	rebuildDuration.Observe(d.Seconds())
}

func recordCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

func recordPropagationPasses(n int) {
	propagationPasses.Observe(float64(n))
}
