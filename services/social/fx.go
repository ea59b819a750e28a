package social

import "go.uber.org/fx"

var Module = fx.Module("service.social",
	fx.Provide(
		NewRegistry,
		NewBrowserSupervisor,
		NewDispatcher,
		NewJanitor,
		NewHandler,
		NewService,
	),
	fx.Invoke(
		registerHandlers,
		registerJanitor,
		registerSessionWatcher,
	),
)
