package cli

import (
	"github.com/spf13/cobra"

	"magpie/internal/backfill"
)

// NewBackupCommand creates the backup command: a full incremental backfill
// of every feed endpoint.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	var drainAfter bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Backfill timeline, mentions, favorites, and direct messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := rootOpts.logger()
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			startMetrics(cfg)
			st, closeStore, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			client := newFeedClient(cfg, log)
			arch := newArchiver(st, log)
			runner := &backfill.Runner{
				Fetcher:  client,
				Archiver: arch,
				Log:      log,
			}
			if err := runner.Run(ctx, cfg.Account.UserID); err != nil {
				return err
			}
			if !drainAfter {
				return nil
			}
			drainer := &backfill.Drainer{
				Store:    st,
				Fetcher:  client,
				Archiver: arch,
				Log:      log,
			}
			stats, err := drainer.Drain(ctx, cfg.Backfill.DrainLimit)
			log.Info().Int("tweets", stats.Tweets).Int("users", stats.Users).
				Int("media", stats.Media).Int("errors", stats.Errors).Msg("drain stats")
			return err
		},
	}

	cmd.Flags().BoolVar(&drainAfter, "drain", true, "resolve queued references after backfill")
	return cmd
}
