package notification

import (
	"guarantee-controlplane/pkg/config"

	"go.uber.org/fx"
)

// Module provides the Publisher used by the API.
var Module = fx.Module("notification.publisher",
	fx.Provide(NewPublisher),
)

// WorkerModule wires the asynq handlers that deliver notifications.
var WorkerModule = fx.Module("notification.worker",
	fx.Provide(
		fx.Annotate(notifyEnabled, fx.ResultTags(`name:"notify_enabled"`)),
		NewHandler,
	),
	fx.Invoke(Register),
)

func notifyEnabled(cfg *config.Config) bool {
	return cfg.N8N.NotifyEnabled
}
