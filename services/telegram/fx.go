package telegram

import "go.uber.org/fx"

var Module = fx.Module("service.telegram",
	fx.Provide(NewPublisher),
	fx.Invoke(registerSetup),
)
