package quiz

import "go.uber.org/fx"

var Module = fx.Module("service.quiz",
	fx.Provide(NewService),
)
