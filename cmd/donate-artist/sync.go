package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Franc-dev/donate-artist/internal/ledger"
	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
)

func syncCmd() *cobra.Command {
	var pretty bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Print the current remote ledger as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			var store ledgerdomain.Store
			app := fx.New(
				fx.NopLogger,
				infraModules(),
				ledger.Module,
				fx.Populate(&store),
			)
			return runOnce(app, func(ctx context.Context) error {
				snap, err := store.SyncFromRemote(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				if pretty {
					enc.SetIndent("", "  ")
				}
				return enc.Encode(snap)
			})
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	return cmd
}
