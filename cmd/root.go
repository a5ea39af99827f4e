// Package cmd implements the knot CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root knot command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "knot",
		Short:         "knot - local-first outline notes synchronized with plain text files",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE:          func(_ *cobra.Command, _ []string) error { return nil },
	}
	opener := newDefaultAppOpener()
	root.AddCommand(NewNewCmd(opener))
	root.AddCommand(NewSyncCmd(opener))
	root.AddCommand(NewWatchCmd(opener))
	root.AddCommand(NewExportCmd(opener))
	root.AddCommand(NewImportCmd(opener))
	root.AddCommand(NewCheckCmd(newDefaultCheckIO()))
	return root
}

// addRootFlags registers the storage flags shared by every command that
// touches a storage root.
func addRootFlags(cmd *cobra.Command, root, dbPath *string) {
	cmd.Flags().StringVar(root, "root", ".", "storage root directory")
	cmd.Flags().StringVar(dbPath, "db", "", "database path (default: <root>/.knot/knot.db)")
}
