package sanitize

import "go.uber.org/fx"

var Module = fx.Module("sanitize.service",
	fx.Provide(NewService),
)
