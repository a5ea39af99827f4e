package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knotapp/knot/internal/block"
)

// NewNewCmd creates the new subcommand, which creates a document and writes
// its initial resource.
func NewNewCmd(opener AppOpener) *cobra.Command {
	var (
		root    string
		dbPath  string
		journal bool
	)

	cmd := &cobra.Command{
		Use:          "new <title>",
		Short:        "Create a new document",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := opener.Open(ctx, root, dbPath)
			if err != nil {
				return err
			}
			defer app.Close()

			kind := block.KindNote
			if journal {
				kind = block.KindJournal
			}
			doc := app.Store.CreateDocument(args[0], kind)
			if _, err := app.Store.CreateBlock(doc.ID, "", ""); err != nil {
				return fmt.Errorf("creating initial block: %w", err)
			}

			if err := app.Engine.ExportDocument(ctx, doc.ID); err != nil {
				return fmt.Errorf("exporting document: %w", err)
			}
			if err := app.Persist(); err != nil {
				return fmt.Errorf("persisting store: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", args[0], doc.ID)
			return nil
		},
	}

	addRootFlags(cmd, &root, &dbPath)
	cmd.Flags().BoolVar(&journal, "journal", false, "create a date-keyed journal entry")
	return cmd
}
