package guarantee

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const meterName = "guarantee-controlplane/services/guarantee"

type metrics struct {
	payouts      metric.Int64Counter
	payoutAmount metric.Float64Counter
}

func newMetrics(mp metric.MeterProvider) metrics {
	meter := mp.Meter(meterName)

	payouts, err := meter.Int64Counter("guarantee.payouts",
		metric.WithDescription("Guarantee payouts issued."),
		metric.WithUnit("{payout}"),
	)
	if err != nil {
		zap.L().Warn("failed to create metric", zap.String("metric", "guarantee.payouts"), zap.Error(err))
		payouts = noop.Int64Counter{}
	}

	amount, err := meter.Float64Counter("guarantee.payout.amount",
		metric.WithDescription("Value of guarantee payouts issued."),
		metric.WithUnit("USD"),
	)
	if err != nil {
		zap.L().Warn("failed to create metric", zap.String("metric", "guarantee.payout.amount"), zap.Error(err))
		amount = noop.Float64Counter{}
	}

	return metrics{payouts: payouts, payoutAmount: amount}
}

func (m metrics) payoutIssued(ctx context.Context, payoutType PayoutType, status InstanceStatus, amount float64) {
	attrs := metric.WithAttributes(
		attribute.String("payout_type", string(payoutType)),
		attribute.String("status", string(status)),
	)
	m.payouts.Add(ctx, 1, attrs)
	m.payoutAmount.Add(ctx, amount, attrs)
}
