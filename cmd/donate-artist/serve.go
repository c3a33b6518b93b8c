package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Franc-dev/donate-artist/internal/ledgersync"
	"github.com/Franc-dev/donate-artist/internal/migration"
	"github.com/Franc-dev/donate-artist/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background ledger sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				infraModules(),
				migration.Module,
				domainModules(),
				ledgersync.Run,
				server.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}
