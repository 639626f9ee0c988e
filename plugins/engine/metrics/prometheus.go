package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ MetricsCollector = (*PrometheusCollector)(nil)

type PrometheusCollector struct {
	stateEntered     *prometheus.CounterVec
	stateFinished    *prometheus.CounterVec
	stateRejected    *prometheus.CounterVec
	stateDuration    *prometheus.HistogramVec
	samplesCollected *prometheus.CounterVec
	itemsReportable  *prometheus.CounterVec
}

func NewPrometheusCollector(registry prometheus.Registerer) *PrometheusCollector {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	return &PrometheusCollector{
		stateEntered: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "labflow_state_entered_total",
				Help: "Total number of items that started processing at a section",
			},
			[]string{"workflow_id", "section_id"},
		),
		stateFinished: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "labflow_state_finished_total",
				Help: "Total number of finished section states",
			},
			[]string{"workflow_id", "section_id"},
		),
		stateRejected: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "labflow_state_rejected_total",
				Help: "Total number of rejected section states",
			},
			[]string{"workflow_id", "section_id", "target"},
		),
		stateDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "labflow_state_processing_seconds",
				Help:    "Time an item spent processing at a section",
				Buckets: prometheus.ExponentialBuckets(30, 2, 12),
			},
			[]string{"workflow_id", "section_id", "status"},
		),
		samplesCollected: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "labflow_samples_collected_total",
				Help: "Total number of sample activations",
			},
			[]string{"sample_type_id"},
		),
		itemsReportable: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "labflow_items_reportable_total",
				Help: "Total number of items whose remaining sections are optional",
			},
			[]string{"method_id"},
		),
	}
}

func (c *PrometheusCollector) RecordStateEntered(workflowID, sectionID string) {
	c.stateEntered.WithLabelValues(workflowID, sectionID).Inc()
}

func (c *PrometheusCollector) RecordStateFinished(workflowID, sectionID string, duration time.Duration) {
	c.stateFinished.WithLabelValues(workflowID, sectionID).Inc()
	c.stateDuration.WithLabelValues(workflowID, sectionID, "finished").Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordStateRejected(workflowID, sectionID, target string, duration time.Duration) {
	c.stateRejected.WithLabelValues(workflowID, sectionID, target).Inc()
	c.stateDuration.WithLabelValues(workflowID, sectionID, "rejected").Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordSampleCollected(sampleTypeID string) {
	c.samplesCollected.WithLabelValues(sampleTypeID).Inc()
}

func (c *PrometheusCollector) RecordItemReportable(methodID string) {
	c.itemsReportable.WithLabelValues(methodID).Inc()
}
