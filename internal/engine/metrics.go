package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/shipd/internal/engine"

// Metrics holds the publish-attempt instruments.
type Metrics struct {
	meter         metric.Meter
	logger        *zap.Logger
	attemptsTotal metric.Int64Counter
	attemptDur    metric.Float64Histogram
	cycles        metric.Int64Histogram
}

// NewMetrics creates the engine instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.attemptsTotal, err = m.meter.Int64Counter(
		"shipd.publish.attempts_total",
		metric.WithDescription("Publish attempts labeled by outcome (published, aborted, manual-intervention-required) and failure class."),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		m.logger.Warn("failed to create attempts counter", zap.Error(err))
	}

	m.attemptDur, err = m.meter.Float64Histogram(
		"shipd.publish.attempt_duration_seconds",
		metric.WithDescription("End-to-end publish attempt duration in seconds, labeled by outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.cycles, err = m.meter.Int64Histogram(
		"shipd.publish.integration_cycles",
		metric.WithDescription("Integration cycles per attempt. Values above 1 indicate contention with other publishers."),
		metric.WithUnit("{cycle}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3),
	)
	if err != nil {
		m.logger.Warn("failed to create cycles histogram", zap.Error(err))
	}
}

func (m *Metrics) recordAttempt(ctx context.Context, a *SyncAttempt, elapsed time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("outcome", string(a.Outcome)),
		attribute.String("failure", string(a.Failure)),
	}
	if m.attemptsTotal != nil {
		m.attemptsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.attemptDur != nil {
		m.attemptDur.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("outcome", string(a.Outcome)),
		))
	}
	if m.cycles != nil && a.IntegrationCycles > 0 {
		m.cycles.Record(ctx, int64(a.IntegrationCycles))
	}
}
