package main

import (
	"context"

	"github.com/adjustly/adjustly/internal/audit"
	"github.com/adjustly/adjustly/internal/billingstatus"
	"github.com/adjustly/adjustly/internal/clock"
	"github.com/adjustly/adjustly/internal/config"
	"github.com/adjustly/adjustly/internal/cyclerun"
	"github.com/adjustly/adjustly/internal/gateway"
	"github.com/adjustly/adjustly/internal/invoice"
	"github.com/adjustly/adjustly/internal/logger"
	"github.com/adjustly/adjustly/internal/migration"
	"github.com/adjustly/adjustly/internal/sanitize"
	"github.com/adjustly/adjustly/internal/scheduler"
	"github.com/adjustly/adjustly/pkg/db"
	"github.com/adjustly/adjustly/pkg/telemetry"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by scheduler
		scheduler.Module,
		cyclerun.Module,
		invoice.Module,
		gateway.Module,
		billingstatus.Module,
		sanitize.Module,
		audit.Module,

		migration.Module,

		// No server module!
		fx.Invoke(StartScheduler),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func StartScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.RunForever(context.Background())
			return nil
		},
	})
}
