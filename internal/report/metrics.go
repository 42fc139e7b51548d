package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for report generation.
//
// Metrics:
//   - report_generations_total{outcome} - reports attempted, by outcome
//   - report_generation_duration_seconds{outcome} - end-to-end generation latency
//   - report_budget_committed_units - committed prompt cost per report
//   - report_section_truncations_total{section} - sections cut at the ceiling
//   - report_binary_resolutions_total{kind,outcome} - image and PDF resolutions
//   - report_external_upload_deletions_total{outcome} - generator-side upload cleanup
type Metrics struct {
	GenerationsTotal    *prometheus.CounterVec
	GenerationDuration  *prometheus.HistogramVec
	BudgetCommitted     prometheus.Histogram
	SectionTruncations  *prometheus.CounterVec
	BinaryResolutions   *prometheus.CounterVec
	UploadDeletionTotal *prometheus.CounterVec
}

// NewMetrics registers report metrics with reg. Pass prometheus.NewRegistry() in tests
// to avoid duplicate registration against the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GenerationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_generations_total",
				Help: "Total number of health report generations",
			},
			[]string{"outcome"}, // "success", "malformed", "provider_error", "collection_error"
		),
		GenerationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "report_generation_duration_seconds",
				Help:    "Duration of health report generation in seconds",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		BudgetCommitted: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "report_budget_committed_units",
				Help:    "Committed prompt cost units per report",
				Buckets: prometheus.LinearBuckets(2500, 2500, 8),
			},
		),
		SectionTruncations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_section_truncations_total",
				Help: "Total number of prompt sections truncated at the budget ceiling",
			},
			[]string{"section"},
		),
		BinaryResolutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_binary_resolutions_total",
				Help: "Total number of binary fragment resolutions",
			},
			[]string{"kind", "outcome"}, // kind: "inline_binary", "external_handle"
		),
		UploadDeletionTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_external_upload_deletions_total",
				Help: "Total number of generator-side upload deletions",
			},
			[]string{"outcome"}, // "deleted", "failed"
		),
	}
}

// The helpers below tolerate a nil receiver so components work without metrics.

func (m *Metrics) observeGeneration(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(outcome).Inc()
	m.GenerationDuration.WithLabelValues(outcome).Observe(seconds)
}

func (m *Metrics) observeAssembly(a *Assembly) {
	if m == nil || a == nil {
		return
	}
	m.BudgetCommitted.Observe(float64(a.Committed))
	for section, truncated := range a.Truncated {
		if truncated {
			m.SectionTruncations.WithLabelValues(string(section)).Inc()
		}
	}
}

func (m *Metrics) observeResolution(kind Kind, outcome string) {
	if m == nil {
		return
	}
	m.BinaryResolutions.WithLabelValues(kind.String(), outcome).Inc()
}

func (m *Metrics) observeDeletion(outcome string) {
	if m == nil {
		return
	}
	m.UploadDeletionTotal.WithLabelValues(outcome).Inc()
}
