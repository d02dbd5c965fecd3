// Package observability provides Prometheus metrics for the ingestion
// pipeline and detection engine.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all Prometheus metrics exposed by the application.
type Metrics struct {
	IngestTotal       *prometheus.CounterVec
	DuplicateTotal    prometheus.Counter
	InferenceDuration prometheus.Histogram
	HeadCountGauge    prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all application metrics on the registry.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: registry,
		IngestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classcount_ingests_total",
				Help: "Total number of image ingestions partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		DuplicateTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "classcount_duplicates_total",
				Help: "Total number of uploads classified as duplicates.",
			},
		),
		InferenceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "classcount_inference_duration_seconds",
				Help:    "Duration of person-detection inference calls.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		HeadCountGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "classcount_last_head_count",
				Help: "Head count of the most recently analyzed image.",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.IngestTotal, m.DuplicateTotal, m.InferenceDuration, m.HeadCountGauge,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// Registry returns the underlying Prometheus registry for HTTP exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
