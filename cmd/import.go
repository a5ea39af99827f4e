package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knotapp/knot/internal/vault"
)

// NewImportCmd creates the import subcommand, which imports a single resource
// (given as location/name, e.g. pages/Ideas.md) into the store.
func NewImportCmd(opener AppOpener) *cobra.Command {
	var (
		root   string
		dbPath string
	)

	cmd := &cobra.Command{
		Use:          "import <location/name>",
		Short:        "Import one text resource into the store",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			location, name, err := splitResource(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := opener.Open(ctx, root, dbPath)
			if err != nil {
				return err
			}
			defer app.Close()

			docID, err := app.Engine.ImportResource(ctx, location, name)
			if err != nil {
				return fmt.Errorf("importing %s: %w", args[0], err)
			}
			if err := app.Persist(); err != nil {
				return fmt.Errorf("persisting store: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%s)\n", args[0], docID)
			return nil
		},
	}

	addRootFlags(cmd, &root, &dbPath)
	return cmd
}

// splitResource splits "location/name" and checks the location is one of the
// watched ones.
func splitResource(arg string) (location, name string, err error) {
	location, name, ok := strings.Cut(arg, "/")
	if !ok || name == "" {
		return "", "", fmt.Errorf("resource must be given as location/name, e.g. %s/Ideas.md", vault.LocationPages)
	}
	if location != vault.LocationPages && location != vault.LocationJournals {
		return "", "", fmt.Errorf("unknown location %q (want %s or %s)", location, vault.LocationPages, vault.LocationJournals)
	}
	return location, name, nil
}
