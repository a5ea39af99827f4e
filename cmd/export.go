package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knotapp/knot/internal/block"
)

// NewExportCmd creates the export subcommand, which writes one document's
// portable text form. With --force the in-store state wins even when the
// resource has newer external edits; otherwise a conflict aborts the export.
func NewExportCmd(opener AppOpener) *cobra.Command {
	var (
		root   string
		dbPath string
		force  bool
	)

	cmd := &cobra.Command{
		Use:          "export <title>",
		Short:        "Export a document to its text resource",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := opener.Open(ctx, root, dbPath)
			if err != nil {
				return err
			}
			defer app.Close()

			doc, ok := app.Store.DocumentByTitle(args[0], block.KindNote)
			if !ok {
				if doc, ok = app.Store.DocumentByTitle(args[0], block.KindJournal); !ok {
					return fmt.Errorf("no document titled %q", args[0])
				}
			}

			if !force {
				conflicted, err := app.Engine.Conflicted(ctx, doc.ID)
				if err != nil {
					return fmt.Errorf("checking for conflict: %w", err)
				}
				if conflicted {
					return fmt.Errorf("resource for %q has newer external edits; re-run sync or use --force", args[0])
				}
			}

			if err := app.Engine.ExportDocument(ctx, doc.ID); err != nil {
				return fmt.Errorf("exporting document: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s\n", args[0])
			return nil
		},
	}

	addRootFlags(cmd, &root, &dbPath)
	cmd.Flags().BoolVar(&force, "force", false, "export even if the resource has newer external edits")
	return cmd
}
