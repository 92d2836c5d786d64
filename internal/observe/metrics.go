// Package observe provides OpenTelemetry metrics for the exam service and
// the HTTP middleware that records request latency.
//
// Metrics go through the OTel Metrics API. InitProvider installs a
// Prometheus exporter so they can be scraped from /metrics. Tests should use
// NewMetrics with their own MeterProvider.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashureev/ielts-coach/internal/domain"
)

const meterName = "github.com/ashureev/ielts-coach"

// latencyBuckets (seconds) cover hosted STT and LLM round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// Metrics holds every instrument the service records.
type Metrics struct {
	STTDuration       metric.Float64Histogram
	LLMDuration       metric.Float64Histogram
	NormalizeDuration metric.Float64Histogram

	// ProviderRequests is labelled provider, kind and status.
	ProviderRequests metric.Int64Counter
	// ProviderErrors is labelled provider and kind.
	ProviderErrors metric.Int64Counter

	ExamTurns        metric.Int64Counter
	PhaseTransitions metric.Int64Counter
	SessionsExpired  metric.Int64Counter

	HTTPRequestDuration metric.Float64Histogram

	meter metric.Meter
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{meter: m}
	var err error

	if met.STTDuration, err = m.Float64Histogram("ielts.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription, retries included."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("ielts.llm.duration",
		metric.WithDescription("Latency of chat completion, retries included."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NormalizeDuration, err = m.Float64Histogram("ielts.audio.normalize.duration",
		metric.WithDescription("Time spent decoding and resampling uploaded audio."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("ielts.provider.requests",
		metric.WithDescription("Collaborator calls by provider, kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("ielts.provider.errors",
		metric.WithDescription("Failed collaborator calls by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ExamTurns, err = m.Int64Counter("ielts.exam.turns",
		metric.WithDescription("Examiner replies by exam part."),
	); err != nil {
		return nil, err
	}
	if met.PhaseTransitions, err = m.Int64Counter("ielts.exam.phase_transitions",
		metric.WithDescription("Moves between exam parts."),
	); err != nil {
		return nil, err
	}
	if met.SessionsExpired, err = m.Int64Counter("ielts.sessions.expired",
		metric.WithDescription("Sessions removed by the inactivity sweeper."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("ielts.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// RegisterSessionGauge reports the live session count on every collection.
func (m *Metrics) RegisterSessionGauge(count func(context.Context) (int, error)) error {
	_, err := m.meter.Int64ObservableGauge("ielts.sessions.active",
		metric.WithDescription("Exam sessions currently held in the store."),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			n, err := count(ctx)
			if err != nil {
				return err
			}
			o.Observe(int64(n))
			return nil
		}),
	)
	return err
}

// RecordProviderRequest records one collaborator call, after retries.
func (m *Metrics) RecordProviderRequest(ctx context.Context, kind, provider string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		))
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))

	attrs := metric.WithAttributes(attribute.String("provider", provider), attribute.String("status", status))
	switch kind {
	case "stt":
		m.STTDuration.Record(ctx, d.Seconds(), attrs)
	case "llm":
		m.LLMDuration.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordNormalize records one audio normalization.
func (m *Metrics) RecordNormalize(ctx context.Context, format string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.NormalizeDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("format", format),
		attribute.String("status", status),
	))
}

// RecordTurn counts one examiner reply.
func (m *Metrics) RecordTurn(ctx context.Context, phase domain.Phase) {
	m.ExamTurns.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase.String())))
}

// RecordPhaseChange counts one move between exam parts.
func (m *Metrics) RecordPhaseChange(ctx context.Context, from, to domain.Phase) {
	m.PhaseTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

// RecordSessionExpired counts one swept session.
func (m *Metrics) RecordSessionExpired(ctx context.Context) {
	m.SessionsExpired.Add(ctx, 1)
}
