package alerts

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "uptimegarden"

var (
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "deliveries_total",
			Help:      "Alert deliveries by channel type and outcome",
		},
		[]string{"channel_type", "status"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "send_duration_seconds",
			Help:      "Time to deliver an alert",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel_type"},
	)

	suppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Down alerts dropped because of an active silence or maintenance window",
		},
	)
)

func recordDelivery(channelType, status string) {
	deliveriesTotal.WithLabelValues(channelType, status).Inc()
}

func recordSendDuration(channelType string, d time.Duration) {
	sendDuration.WithLabelValues(channelType).Observe(d.Seconds())
}
