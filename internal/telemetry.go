// Package internal provides the shared telemetry plumbing (logging,
// tracing, metrics) used by every stage of the library.
package internal

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/FerroO2000/attimo"

func newDefaultLogger() *slog.Logger {
	w := os.Stderr

	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		return slog.New(tint.NewHandler(colorable.NewColorable(w), &tint.Options{
			TimeFormat: time.TimeOnly,
		}))
	}

	return slog.New(slog.NewJSONHandler(w, nil))
}

var baseLogger = newDefaultLogger()

// UseOTelLogging routes all stage logs through the OpenTelemetry slog
// bridge instead of the default console handler. Call it after the OTel
// providers are set up and before creating any stage.
func UseOTelLogging() {
	baseLogger = slog.New(otelslog.NewHandler(scopeName))
}

// Telemetry bundles the logger, tracer, and meter of a single stage.
// Every stage gets its own instance, tagged with the stage kind
// (ingress/processor/egress) and name.
type Telemetry struct {
	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter

	kind string
	name string
}

// NewTelemetry returns the telemetry for the stage identified by kind and name.
func NewTelemetry(kind, name string) *Telemetry {
	return &Telemetry{
		logger: baseLogger.With("stage_kind", kind, "stage_name", name),
		tracer: otel.Tracer(scopeName),
		meter:  otel.Meter(scopeName),

		kind: kind,
		name: name,
	}
}

// LogInfo logs at info level.
func (t *Telemetry) LogInfo(msg string, args ...any) {
	t.logger.Info(msg, args...)
}

// LogWarn logs at warn level.
func (t *Telemetry) LogWarn(msg string, args ...any) {
	t.logger.Warn(msg, args...)
}

// LogError logs at error level with the given error attached.
func (t *Telemetry) LogError(msg string, err error, args ...any) {
	t.logger.Error(msg, append([]any{"error", err}, args...)...)
}

// NewTrace starts a new span scoped to the stage.
func (t *Telemetry) NewTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(t.stageAttrs()...))
}

// InjectTrace injects the trace context of ctx into the given carrier.
func (t *Telemetry) InjectTrace(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// NewCounter registers an observable counter that reports the value
// returned by the callback. Registration errors are logged, not returned:
// a stage must not fail to start because the meter provider is a no-op.
func (t *Telemetry) NewCounter(name string, callback func() int64) {
	_, err := t.meter.Int64ObservableCounter(
		t.metricName(name),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			obs.Observe(callback())
			return nil
		}),
	)
	if err != nil {
		t.LogError("failed to register counter", err, "metric", name)
	}
}

// Histogram records int64 distributions for a stage.
type Histogram struct {
	hist  metric.Int64Histogram
	attrs metric.MeasurementOption
}

// NewHistogram registers a new histogram on the stage meter.
func (t *Telemetry) NewHistogram(name string, opts ...metric.Int64HistogramOption) *Histogram {
	hist, err := t.meter.Int64Histogram(t.metricName(name), opts...)
	if err != nil {
		t.LogError("failed to register histogram", err, "metric", name)
	}

	return &Histogram{
		hist:  hist,
		attrs: metric.WithAttributes(t.stageAttrs()...),
	}
}

// Record records a single value into the histogram.
func (h *Histogram) Record(ctx context.Context, value int64) {
	if h.hist == nil {
		return
	}

	h.hist.Record(ctx, value, h.attrs)
}

func (t *Telemetry) stageAttrs() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("stage_kind", t.kind),
		attribute.String("stage_name", t.name),
	}
}

func (t *Telemetry) metricName(name string) string {
	return t.kind + "_" + t.name + "_" + name
}
