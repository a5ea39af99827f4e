package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/knotapp/knot/internal/codec"
)

// CheckIO handles I/O for the check command.
type CheckIO interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// NewCheckCmd creates the check subcommand: structural validation of a text
// resource without a full import, for early feedback on hand-edited files.
func NewCheckCmd(io CheckIO) *cobra.Command {
	return &cobra.Command{
		Use:          "check <file>",
		Short:        "Validate a text resource's structure",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := io.ReadFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			if err := codec.Validate(data); err != nil {
				return fmt.Errorf("%s is not a valid document: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
			return nil
		},
	}
}

// fileCheckIO implements CheckIO using OS file I/O.
type fileCheckIO struct{}

func newDefaultCheckIO() *fileCheckIO { return &fileCheckIO{} }

// ReadFile reads the file at path.
func (io *fileCheckIO) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}
