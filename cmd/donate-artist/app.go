package main

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/Franc-dev/donate-artist/internal/admin"
	"github.com/Franc-dev/donate-artist/internal/appstate"
	"github.com/Franc-dev/donate-artist/internal/authorization"
	"github.com/Franc-dev/donate-artist/internal/clock"
	"github.com/Franc-dev/donate-artist/internal/config"
	"github.com/Franc-dev/donate-artist/internal/donation"
	"github.com/Franc-dev/donate-artist/internal/gateway"
	"github.com/Franc-dev/donate-artist/internal/ledger"
	"github.com/Franc-dev/donate-artist/internal/ledgersync"
	"github.com/Franc-dev/donate-artist/internal/observability"
	"github.com/Franc-dev/donate-artist/internal/payment"
	"github.com/Franc-dev/donate-artist/internal/providers"
	"github.com/Franc-dev/donate-artist/internal/ratelimit"
	"github.com/Franc-dev/donate-artist/internal/user"
	"github.com/Franc-dev/donate-artist/pkg/db"
	"github.com/Franc-dev/donate-artist/pkg/kv"
)

const commandTimeout = 30 * time.Second

// infraModules is what every command needs: config, logging, telemetry,
// database and redis.
func infraModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		kv.Module,
	)
}

// domainModules wires every service behind the HTTP API.
func domainModules() fx.Option {
	return fx.Options(
		gateway.Module,
		payment.Module,
		ledger.Module,
		user.Module,
		appstate.Module,
		ratelimit.Module,
		providers.Module,
		donation.Module,
		ledgersync.Module,
		authorization.Module,
		admin.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

// runOnce starts app, runs fn and stops app again.
func runOnce(app *fx.App, fn func(ctx context.Context) error) error {
	if err := app.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn(startCtx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), commandTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
