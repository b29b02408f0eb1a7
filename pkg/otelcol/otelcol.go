package otelcol

import (
	"context"

	"guarantee-controlplane/pkg/config"
	"guarantee-controlplane/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol",
	fx.Provide(ProvideMeterProvider),
	fx.Invoke(RegisterMetric, Register),
)

func Resource(cfg *config.Config) *resource.Resource {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		return resource.Default()
	}
	return res
}

func ProvideTrace(exporter trace.SpanExporter, opts ...trace.TracerProviderOption) *trace.TracerProvider {
	opts = append(opts, trace.WithBatcher(exporter))
	return trace.NewTracerProvider(opts...)
}

func defaultMetricProviderOption() []sdkmetric.Option {
	return []sdkmetric.Option{
		sdkmetric.WithResource(resource.Default()),
	}
}

func ProvideMetric(reader sdkmetric.Reader, opts ...sdkmetric.Option) *sdkmetric.MeterProvider {
	if len(opts) == 0 {
		opts = defaultMetricProviderOption()
	}
	opts = append(opts, sdkmetric.WithReader(reader))
	return sdkmetric.NewMeterProvider(opts...)
}

// ProvideMeterProvider hands services the global provider; instruments made
// from it before RegisterMetric runs are delegated once it does.
func ProvideMeterProvider() metric.MeterProvider {
	return otel.GetMeterProvider()
}

// RegisterMetric installs the global meter provider. Readings are pulled
// through the prometheus default registry, next to the gorm pool metrics.
func RegisterMetric(lc fx.Lifecycle, cfg *config.Config) error {
	reader, err := otelprom.New()
	if err != nil {
		zap.L().Error("failed to create prometheus metric reader", zap.Error(err))
		return err
	}

	mp := ProvideMetric(reader, sdkmetric.WithResource(Resource(cfg)))
	otel.SetMeterProvider(mp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return mp.Shutdown(ctx)
		},
	})
	return nil
}

// Register installs the global tracer provider. Tracing stays a no-op when
// OTEL_ADDR is empty.
func Register(lc fx.Lifecycle, cfg *config.Config) error {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.Otel.Addr == "" {
		zap.L().Info("otel exporter disabled")
		return nil
	}

	var (
		exporter trace.SpanExporter
		err      error
	)
	switch cfg.Otel.Protocol {
	case "grpc":
		exporter, err = exporters.ProvideGrpc(cfg)
	default:
		exporter, err = exporters.ProvideHttp(cfg)
	}
	if err != nil {
		return err
	}

	tp := ProvideTrace(exporter, trace.WithResource(Resource(cfg)))
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return nil
}
