package media

import "go.uber.org/fx"

var Module = fx.Module("service.media",
	fx.Provide(
		NewRenderer,
		NewStorage,
		NewURLCache,
		NewGenerator,
	),
)
