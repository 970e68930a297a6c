package importer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ingestion counters. A nil *Metrics records nothing.
type Metrics struct {
	Messages *prometheus.CounterVec
	Labels   *prometheus.CounterVec
	Archives *prometheus.CounterVec
	Duration prometheus.Histogram
}

// NewMetrics registers the ingestion metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Messages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mboxvault_ingest_messages_total",
				Help: "Messages attempted, by result.",
			},
			[]string{"result"}, // result: ok, failed
		),
		Labels: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mboxvault_ingest_labels_total",
				Help: "Label rows offered to the store, by result.",
			},
			[]string{"result"}, // result: written, existing, rejected
		),
		Archives: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mboxvault_ingest_archives_total",
				Help: "Archives processed, by terminal status.",
			},
			[]string{"status"}, // status: completed, failed, interrupted
		),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mboxvault_ingest_archive_duration_seconds",
			Help:    "Wall time spent processing one archive.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27m
		}),
	}
}

func (m *Metrics) message(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Messages.WithLabelValues("ok").Inc()
	} else {
		m.Messages.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) labels(written, existing, rejected int) {
	if m == nil {
		return
	}
	m.Labels.WithLabelValues("written").Add(float64(written))
	m.Labels.WithLabelValues("existing").Add(float64(existing))
	m.Labels.WithLabelValues("rejected").Add(float64(rejected))
}

func (m *Metrics) archive(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Archives.WithLabelValues(status).Inc()
	m.Duration.Observe(d.Seconds())
}
