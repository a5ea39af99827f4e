package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSyncCmd creates the sync subcommand: one full two-phase synchronization
// pass (import everything on disk, then export everything in the store).
func NewSyncCmd(opener AppOpener) *cobra.Command {
	var (
		root   string
		dbPath string
	)

	cmd := &cobra.Command{
		Use:          "sync",
		Short:        "Run one full synchronization pass",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := opener.Open(ctx, root, dbPath)
			if err != nil {
				return err
			}
			defer app.Close()

			res := app.Engine.FullSync(ctx)
			if err := app.Persist(); err != nil {
				return fmt.Errorf("persisting store: %w", err)
			}

			for _, f := range res.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s/%s: %v\n", f.Location, f.Name, f.Err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d, exported %d, %d failed\n",
				res.Imported, res.Exported, len(res.Failures))
			return nil
		},
	}

	addRootFlags(cmd, &root, &dbPath)
	return cmd
}
