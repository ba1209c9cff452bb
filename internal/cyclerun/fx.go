package cyclerun

import (
	"github.com/adjustly/adjustly/internal/cyclerun/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cyclerun",
	fx.Provide(service.NewService),
)
