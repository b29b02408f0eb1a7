package guarantee

import "go.uber.org/fx"

var Module = fx.Module("guarantee",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
