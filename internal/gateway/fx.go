package gateway

import (
	"github.com/adjustly/adjustly/internal/gateway/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway",
	fx.Provide(
		service.NewProcessorAdapter,
		service.NewService,
	),
)
