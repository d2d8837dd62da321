package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"readshelf/pkg/library"
)

const namespace = "readshelf_worker"

type metrics struct {
	events      *prometheus.CounterVec
	sweeps      *prometheus.CounterVec
	purged      *prometheus.CounterVec
	rows        *prometheus.CounterVec
	cleared     prometheus.Counter
	failures    prometheus.Counter
	lastSuccess prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Library events consumed, by type and outcome.",
		}, []string{"type", "outcome"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Hard-delete sweep runs, by result.",
		}, []string{"result"}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purged_total",
			Help:      "Soft-deleted aggregates hard-deleted, by kind.",
		}, []string{"kind"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purged_rows_total",
			Help:      "Rows removed or detached by the sweep, by table.",
		}, []string{"table"}),
		cleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleared_sources_total",
			Help:      "Referenced sources whose content was cleared.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Aggregates the sweep could not process.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sweep_success_timestamp_seconds",
			Help:      "Unix time of the last sweep that finished without failures.",
		}),
	}
	reg.MustRegister(m.events, m.sweeps, m.purged, m.rows, m.cleared, m.failures, m.lastSuccess)
	return m
}

func (m *metrics) observeSweep(report library.SweepReport, err error) {
	for kind, n := range report.Purged {
		m.purged.WithLabelValues(string(kind)).Add(float64(n))
	}
	for table, n := range report.Rows {
		m.rows.WithLabelValues(table).Add(float64(n))
	}
	m.cleared.Add(float64(report.Cleared))
	m.failures.Add(float64(len(report.Failures)))
	switch {
	case err != nil:
		m.sweeps.WithLabelValues("canceled").Inc()
	case len(report.Failures) > 0:
		m.sweeps.WithLabelValues("partial").Inc()
	default:
		m.sweeps.WithLabelValues("ok").Inc()
		m.lastSuccess.SetToCurrentTime()
	}
}
