package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"guarantee-controlplane/pkg/auth"
	"guarantee-controlplane/pkg/config"
	"guarantee-controlplane/pkg/db"
	"guarantee-controlplane/pkg/gen"
	"guarantee-controlplane/pkg/hashistack/secretmanager"
	"guarantee-controlplane/pkg/httpapi"
	"guarantee-controlplane/pkg/logger"
	"guarantee-controlplane/pkg/otelcol"
	"guarantee-controlplane/pkg/payment"
	"guarantee-controlplane/pkg/profiling"
	"guarantee-controlplane/pkg/redis"
	"guarantee-controlplane/pkg/sequence"
	"guarantee-controlplane/pkg/server"
	"guarantee-controlplane/pkg/task"
	"guarantee-controlplane/services/campaign"
	"guarantee-controlplane/services/guarantee"
	"guarantee-controlplane/services/notification"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		payment.Module,
		task.Client,
		notification.Module,
		auth.Module,
		httpapi.Module,
		guarantee.Module,
		campaign.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})
