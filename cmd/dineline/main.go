package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/dineline/dineline/internal/billing"
	"github.com/dineline/dineline/internal/call"
	"github.com/dineline/dineline/internal/clock"
	"github.com/dineline/dineline/internal/config"
	"github.com/dineline/dineline/internal/logger"
	"github.com/dineline/dineline/internal/migration"
	"github.com/dineline/dineline/internal/plan"
	"github.com/dineline/dineline/internal/ratelimit"
	"github.com/dineline/dineline/internal/restaurant"
	"github.com/dineline/dineline/internal/server"
	"github.com/dineline/dineline/internal/sweeper"
	"github.com/dineline/dineline/internal/usage"
	"github.com/dineline/dineline/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		migration.Module,
		plan.Module,
		ratelimit.Module,

		restaurant.Module,
		call.Module,
		usage.Module,
		billing.Module,
		sweeper.Module,
		server.Module,
	)
	app.Run()
}

func registerSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
