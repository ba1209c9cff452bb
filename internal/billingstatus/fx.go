package billingstatus

import (
	"github.com/adjustly/adjustly/internal/billingstatus/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingstatus.service",
	fx.Provide(service.NewService),
)
