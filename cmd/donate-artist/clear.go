package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Franc-dev/donate-artist/internal/admin"
)

func clearLedgerCmd() *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "clear-ledger",
		Short: "Delete every vote, donation, callback and user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("refusing to clear the ledger without --yes")
			}
			var svc *admin.Service
			app := fx.New(
				fx.NopLogger,
				infraModules(),
				domainModules(),
				fx.Populate(&svc),
			)
			return runOnce(app, func(ctx context.Context) error {
				if err := svc.ClearAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ledger cleared")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the reset")
	return cmd
}
