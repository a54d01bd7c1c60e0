package cli

import (
	"github.com/spf13/cobra"

	"magpie/internal/importer"
)

// NewImportCommand creates the import command group for one-time loads of
// exported data.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load exported archives into the store",
	}
	cmd.AddCommand(newImportArchiveCommand(rootOpts))
	cmd.AddCommand(newImportLinesCommand(rootOpts))
	return cmd
}

func newImportArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <dir>",
		Short: "Import the official export's data/js/tweets month files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := rootOpts.logger()
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			st, closeStore, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			_, err = importer.ImportArchive(ctx, newArchiver(st, log), args[0], log)
			return err
		},
	}
}

func newImportLinesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lines <file>",
		Short: "Import a line-delimited JSON tweet dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := rootOpts.logger()
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			st, closeStore, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			_, err = importer.ImportLines(ctx, newArchiver(st, log), args[0], log)
			return err
		},
	}
}
