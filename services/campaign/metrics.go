package campaign

import (
	"context"

	"guarantee-controlplane/services/guarantee"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const meterName = "guarantee-controlplane/services/campaign"

type metrics struct {
	resolved     metric.Int64Counter
	payoutAmount metric.Float64Counter
}

func newMetrics(mp metric.MeterProvider) metrics {
	meter := mp.Meter(meterName)

	resolved, err := meter.Int64Counter("campaign.enrollments.resolved",
		metric.WithDescription("Campaign enrollments resolved to a payout."),
		metric.WithUnit("{enrollment}"),
	)
	if err != nil {
		zap.L().Warn("failed to create metric", zap.String("metric", "campaign.enrollments.resolved"), zap.Error(err))
		resolved = noop.Int64Counter{}
	}

	amount, err := meter.Float64Counter("campaign.payout.amount",
		metric.WithDescription("Value of campaign payouts."),
		metric.WithUnit("USD"),
	)
	if err != nil {
		zap.L().Warn("failed to create metric", zap.String("metric", "campaign.payout.amount"), zap.Error(err))
		amount = noop.Float64Counter{}
	}

	return metrics{resolved: resolved, payoutAmount: amount}
}

func (m metrics) enrollmentResolved(ctx context.Context, payoutType guarantee.PayoutType, status EnrollmentStatus, amount float64) {
	attrs := metric.WithAttributes(
		attribute.String("payout_type", string(payoutType)),
		attribute.String("status", string(status)),
	)
	m.resolved.Add(ctx, 1, attrs)
	m.payoutAmount.Add(ctx, amount, attrs)
}
