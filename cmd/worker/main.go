package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"guarantee-controlplane/pkg/config"
	"guarantee-controlplane/pkg/db"
	"guarantee-controlplane/pkg/featureflags"
	"guarantee-controlplane/pkg/gen"
	"guarantee-controlplane/pkg/hashistack/secretmanager"
	"guarantee-controlplane/pkg/logger"
	"guarantee-controlplane/pkg/n8n"
	"guarantee-controlplane/pkg/otelcol"
	"guarantee-controlplane/pkg/task"
	"guarantee-controlplane/services/expiry"
	"guarantee-controlplane/services/notification"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		featureflags.Module,
		db.Module,
		gen.Module,
		n8n.Module,
		task.Client,
		task.Server,
		notification.WorkerModule,
		expiry.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
