package cli

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"magpie/internal/stream"
)

// NewStreamCommand creates the stream command: archive the live feed until
// interrupted. Best effort; anything missed is covered by the next backup.
func NewStreamCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Archive items from the live feed subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := rootOpts.logger()
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Stream.URL == "" {
				return errors.New("stream.url is not configured")
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			startMetrics(cfg)
			st, closeStore, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			listener := &stream.Listener{
				URL:      cfg.Stream.URL,
				Archiver: newArchiver(st, log),
				Log:      log,
			}
			return listener.Run(ctx)
		},
	}
	return cmd
}
