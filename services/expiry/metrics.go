package expiry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const meterName = "guarantee-controlplane/services/expiry"

type metrics struct {
	expired metric.Int64Counter
	runs    metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) metrics {
	meter := mp.Meter(meterName)

	expired, err := meter.Int64Counter("expiry.sweep.expired",
		metric.WithDescription("Rows moved to expired by the sweep."),
	)
	if err != nil {
		zap.L().Warn("failed to create metric", zap.String("metric", "expiry.sweep.expired"), zap.Error(err))
		expired = noop.Int64Counter{}
	}

	runs, err := meter.Int64Counter("expiry.sweep.runs",
		metric.WithDescription("Expiry sweep runs by outcome."),
	)
	if err != nil {
		zap.L().Warn("failed to create metric", zap.String("metric", "expiry.sweep.runs"), zap.Error(err))
		runs = noop.Int64Counter{}
	}

	return metrics{expired: expired, runs: runs}
}

func (m metrics) record(ctx context.Context, run *Run) {
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(run.Status))))
	m.expired.Add(ctx, run.EnrollmentsExpired, metric.WithAttributes(attribute.String("kind", "enrollment")))
	m.expired.Add(ctx, run.InstancesExpired, metric.WithAttributes(attribute.String("kind", "instance")))
}
