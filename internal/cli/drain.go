package cli

import (
	"github.com/spf13/cobra"

	"magpie/internal/backfill"
)

// NewDrainCommand creates the drain command: resolve backup-queue
// placeholders into full entities without running a backfill.
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Fetch entities queued by reference discovery",
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

			if limit <= 0 {
				limit = cfg.Backfill.DrainLimit
			}
			drainer := &backfill.Drainer{
				Store:    st,
				Fetcher:  newFeedClient(cfg, log),
				Archiver: newArchiver(st, log),
				Log:      log,
			}
			stats, err := drainer.Drain(ctx, limit)
			log.Info().Int("tweets", stats.Tweets).Int("users", stats.Users).
				Int("media", stats.Media).Int("errors", stats.Errors).Msg("drain stats")
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "max placeholders per kind (0 = config default)")
	return cmd
}
