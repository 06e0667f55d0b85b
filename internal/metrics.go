package internal

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PrometheusEmitter maps telemetry measurements onto Prometheus collectors.
type PrometheusEmitter struct {
	latency     *prometheus.HistogramVec
	rows        *prometheus.HistogramVec
	validations *prometheus.CounterVec
	schemaLoads *prometheus.CounterVec
}

// NewPrometheusEmitter creates and registers the widget collectors on reg.
func NewPrometheusEmitter(reg prometheus.Registerer, namespace string) (*PrometheusEmitter, error) {
	e := &PrometheusEmitter{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "data_query_duration_milliseconds",
			Help:      "Latency of widget data queries.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"grouped"}),
		rows: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "data_query_rows",
			Help:      "Result rows produced by widget data queries.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"data_type"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Rejected widget payloads by failing field.",
		}, []string{"field"}),
		schemaLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_loads_total",
			Help:      "Form data dictionary loads by outcome.",
		}, []string{"outcome"}),
	}
	for _, c := range []prometheus.Collector{e.latency, e.rows, e.validations, e.schemaLoads} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Emit satisfies TelemetryEmitter.
func (e *PrometheusEmitter) Emit(_ context.Context, name string, labels map[string]string, value any) {
	v, ok := toFloat(value)
	if !ok {
		zap.S().Debugw("dropping non-numeric measurement", "name", name, "value", value)
		return
	}
	switch name {
	case MetricDataQueryLatency:
		e.latency.With(labels).Observe(v)
	case MetricDataQueryRows:
		e.rows.With(labels).Observe(v)
	case MetricValidationFailed:
		e.validations.With(labels).Add(v)
	case MetricSchemaLoads:
		e.schemaLoads.With(labels).Add(v)
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
