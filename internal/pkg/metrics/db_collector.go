package metrics

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// DBPoolCollector reads pgxpool statistics at scrape time.
type DBPoolCollector struct {
	pool *pgxpool.Pool

	conns           *prometheus.Desc
	acquires        *prometheus.Desc
	acquireDuration *prometheus.Desc
	emptyAcquires   *prometheus.Desc
	canceled        *prometheus.Desc
}

// NewDBPoolCollector creates a collector for pool.
func NewDBPoolCollector(pool *pgxpool.Pool) *DBPoolCollector {
	fq := func(name string) string { return prometheus.BuildFQName(namespace, "db", name) }
	return &DBPoolCollector{
		pool: pool,
		conns: prometheus.NewDesc(fq("pool_connections"),
			"Number of database connections by state", []string{"state"}, nil),
		acquires: prometheus.NewDesc(fq("pool_acquires_total"),
			"Cumulative number of successful connection acquires", nil, nil),
		acquireDuration: prometheus.NewDesc(fq("pool_acquire_duration_seconds_total"),
			"Total time spent acquiring connections", nil, nil),
		emptyAcquires: prometheus.NewDesc(fq("pool_empty_acquires_total"),
			"Cumulative number of acquires that waited for a connection", nil, nil),
		canceled: prometheus.NewDesc(fq("pool_canceled_acquires_total"),
			"Cumulative number of acquires canceled by their context", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *DBPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.conns
	ch <- c.acquires
	ch <- c.acquireDuration
	ch <- c.emptyAcquires
	ch <- c.canceled
}

// Collect implements prometheus.Collector.
func (c *DBPoolCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.pool.Stat()

	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(stats.AcquiredConns()), "in_use")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(stats.IdleConns()), "idle")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(stats.ConstructingConns()), "constructing")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(stats.MaxConns()), "max")
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(stats.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.acquireDuration, prometheus.CounterValue, stats.AcquireDuration().Seconds())
	ch <- prometheus.MustNewConstMetric(c.emptyAcquires, prometheus.CounterValue, float64(stats.EmptyAcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.canceled, prometheus.CounterValue, float64(stats.CanceledAcquireCount()))
}

// RegisterDBPool registers a pool collector with the default registry,
// replacing the collector of a previous pool.
func RegisterDBPool(pool *pgxpool.Pool) error {
	return register(prometheus.DefaultRegisterer, NewDBPoolCollector(pool))
}

func register(reg prometheus.Registerer, c prometheus.Collector) error {
	err := reg.Register(c)
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return err
	}
	reg.Unregister(are.ExistingCollector)
	return reg.Register(c)
}
