package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/kaimoapp/kaimo/internal/clock"
	"github.com/kaimoapp/kaimo/internal/config"
	"github.com/kaimoapp/kaimo/internal/logger"
	"github.com/kaimoapp/kaimo/internal/migration"
	"github.com/kaimoapp/kaimo/internal/scheduler"
	"github.com/kaimoapp/kaimo/internal/server"
	"github.com/kaimoapp/kaimo/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP API and background jobs
		server.Module,
		scheduler.Module,
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
