package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "uptimegarden"

var (
	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "size",
			Help:      "Number of queued messages by topic and status",
		},
		[]string{"topic", "status"},
	)

	messagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "published_total",
			Help:      "Total messages published",
		},
		[]string{"topic", "status"},
	)

	messagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "processed_total",
			Help:      "Total messages handled by outcome (ack, retry, dead, malformed)",
		},
		[]string{"topic", "outcome"},
	)

	handleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "handle_duration_seconds",
			Help:      "Time spent in message handlers",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"topic"},
	)
)

// RecordPublished records a publish attempt.
func RecordPublished(topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	messagesPublished.WithLabelValues(topic, status).Inc()
}

func recordProcessed(topic, outcome string) {
	messagesProcessed.WithLabelValues(topic, outcome).Inc()
}

func recordHandleDuration(topic string, d time.Duration) {
	handleDuration.WithLabelValues(topic).Observe(d.Seconds())
}

// Stats is a count of messages by status for one topic.
type Stats struct {
	Topic      string
	Pending    int
	Processing int
	Failed     int
}

// RecordStats updates queue size metrics.
func RecordStats(stats []Stats) {
	for _, s := range stats {
		queueSize.WithLabelValues(s.Topic, "pending").Set(float64(s.Pending))
		queueSize.WithLabelValues(s.Topic, "processing").Set(float64(s.Processing))
		queueSize.WithLabelValues(s.Topic, "failed").Set(float64(s.Failed))
	}
}
