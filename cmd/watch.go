package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// NewWatchCmd creates the watch subcommand: a full sync followed by the
// polling change-detection loop, until interrupted.
func NewWatchCmd(opener AppOpener) *cobra.Command {
	var (
		root     string
		dbPath   string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:          "watch",
		Short:        "Watch the storage root and keep it synchronized",
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
			fmt.Fprintf(cmd.OutOrStdout(), "Synchronized: %d imported, %d exported\n",
				res.Imported, res.Exported)

			app.Engine.SetPollInterval(interval)
			app.Engine.Start(ctx)
			defer app.Engine.Stop()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			select {
			case <-sigCh:
			case <-ctx.Done():
			}

			if err := app.Persist(); err != nil {
				return fmt.Errorf("persisting store: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
			return nil
		},
	}

	addRootFlags(cmd, &root, &dbPath)
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "polling interval")
	return cmd
}
