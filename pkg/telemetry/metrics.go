package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/wachiwi/motioncam"

// Metrics groups the instruments recorded by the motion pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	motionEvents    metric.Int64Counter
	dispatches      metric.Int64Counter
	recordings      metric.Int64Counter
	fallbacks       metric.Int64Counter
	sinkErrors      metric.Int64Counter
	captureDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	if m.motionEvents, err = meter.Int64Counter("motioncam.motion.events",
		metric.WithDescription("Motion edges seen by the dispatch core"),
		metric.WithUnit("{events}"),
	); err != nil {
		slog.Error("Failed to create motion events counter", "error", err)
	}
	if m.dispatches, err = meter.Int64Counter("motioncam.recording.dispatches",
		metric.WithDescription("Motion events that passed cooldown and mode gates"),
		metric.WithUnit("{dispatches}"),
	); err != nil {
		slog.Error("Failed to create dispatch counter", "error", err)
	}
	if m.recordings, err = meter.Int64Counter("motioncam.recordings",
		metric.WithDescription("Recording attempts by outcome"),
		metric.WithUnit("{recordings}"),
	); err != nil {
		slog.Error("Failed to create recordings counter", "error", err)
	}
	if m.fallbacks, err = meter.Int64Counter("motioncam.encoder.fallbacks",
		metric.WithDescription("Captures that fell back to the software encoder"),
		metric.WithUnit("{captures}"),
	); err != nil {
		slog.Error("Failed to create fallback counter", "error", err)
	}
	if m.sinkErrors, err = meter.Int64Counter("motioncam.sink.errors",
		metric.WithDescription("Best-effort sink failures"),
		metric.WithUnit("{errors}"),
	); err != nil {
		slog.Error("Failed to create sink error counter", "error", err)
	}
	if m.captureDuration, err = meter.Float64Histogram("motioncam.capture.duration",
		metric.WithDescription("Wall time of a recording including fallback"),
		metric.WithUnit("s"),
	); err != nil {
		slog.Error("Failed to create capture duration histogram", "error", err)
	}
	return m
}

// Tracer returns the package tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func (m *Metrics) MotionDetected(ctx context.Context, mode string) {
	if m == nil || m.motionEvents == nil {
		return
	}
	m.motionEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *Metrics) Dispatched(ctx context.Context) {
	if m == nil || m.dispatches == nil {
		return
	}
	m.dispatches.Add(ctx, 1)
}

// RecordingFinished records an attempt with outcome "saved", "failed",
// "unavailable" or "busy".
func (m *Metrics) RecordingFinished(ctx context.Context, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	if m.recordings != nil {
		m.recordings.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if m.captureDuration != nil && took > 0 {
		m.captureDuration.Record(ctx, took.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (m *Metrics) EncoderFallback(ctx context.Context) {
	if m == nil || m.fallbacks == nil {
		return
	}
	m.fallbacks.Add(ctx, 1)
}

func (m *Metrics) SinkError(ctx context.Context, sink string) {
	if m == nil || m.sinkErrors == nil {
		return
	}
	m.sinkErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}
