package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/Franc-dev/donate-artist/internal/config"
	"github.com/Franc-dev/donate-artist/internal/migration"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				conn *gorm.DB
				cfg  config.Config
			)
			app := fx.New(
				fx.NopLogger,
				infraModules(),
				fx.Populate(&conn, &cfg),
			)
			return runOnce(app, func(context.Context) error {
				if err := migration.Run(conn, cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.DBType)
				return nil
			})
		},
	}
}
