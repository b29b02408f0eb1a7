package expiry

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"

	"guarantee-controlplane/pkg/taskname"
)

var Module = fx.Module("expiry",
	fx.Provide(
		NewService,
		NewScheduler,
	),
	fx.Invoke(StartScheduler, Register),
)

func Register(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.ExpirySweep, svc.HandleSweep)
}
