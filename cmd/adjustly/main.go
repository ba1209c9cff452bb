package main

import (
	"context"

	"github.com/adjustly/adjustly/internal/clock"
	"github.com/adjustly/adjustly/internal/config"
	"github.com/adjustly/adjustly/internal/logger"
	"github.com/adjustly/adjustly/internal/migration"
	"github.com/adjustly/adjustly/internal/scheduler"
	"github.com/adjustly/adjustly/internal/server"
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

		server.Module,
		migration.Module,

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
