package internal

import (
	"context"
	"sync"
)

// Telemetry hook layer. Service wiring registers a real emitter (Prometheus in the
// server, a recorder in tests); the default drops every measurement.

// TelemetryEmitter receives one named measurement.
type TelemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

// Measurement names.
const (
	MetricDataQueryLatency = "widget_data_query_latency_ms"
	MetricDataQueryRows    = "widget_data_query_rows"
	MetricValidationFailed = "widget_validation_failures"
	MetricSchemaLoads      = "widget_schema_loads"
)

var (
	teleMu   sync.Mutex
	teleImpl TelemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {}
)

// RegisterTelemetryEmitter installs fn. A nil fn restores the no-op emitter.
func RegisterTelemetryEmitter(fn TelemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emit(ctx context.Context, name string, labels map[string]string, value any) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, name, labels, value)
}

// EmitLatency records the duration (milliseconds) of a widget data query.
func EmitLatency(ctx context.Context, groupBy bool, ms int64) {
	grouped := "false"
	if groupBy {
		grouped = "true"
	}
	emit(ctx, MetricDataQueryLatency, map[string]string{"grouped": grouped}, ms)
}

// EmitRowCount records how many result rows a data query produced, per data type.
func EmitRowCount(ctx context.Context, dataType string, rows int64) {
	emit(ctx, MetricDataQueryRows, map[string]string{"data_type": dataType}, rows)
}

// EmitValidationFailure counts rejected payloads per failing field.
func EmitValidationFailure(ctx context.Context, field string) {
	emit(ctx, MetricValidationFailed, map[string]string{"field": field}, int64(1))
}

// EmitSchemaLoad counts data dictionary loads per outcome.
func EmitSchemaLoad(ctx context.Context, outcome string) {
	emit(ctx, MetricSchemaLoads, map[string]string{"outcome": outcome}, int64(1))
}
