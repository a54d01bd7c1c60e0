package backfill

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"magpie/internal/archive"
	"magpie/internal/metrics"
)

// Runner executes a full backup: every feed endpoint, each on its own
// cursor. Endpoints touch largely disjoint key spaces, so they run
// concurrently; shared referenced entities (authors, cross-referenced
// tweets) are safe under the archive's idempotent conflict policy.
type Runner struct {
	Fetcher  PageFetcher
	Archiver *archive.Archiver
	Log      zerolog.Logger
}

// Run backfills all endpoints for the account and logs per-endpoint stats.
// The first endpoint failure cancels the others.
func (r *Runner) Run(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("backup requires the account user id")
	}
	start := time.Now()
	defer metrics.ObserveBackfillDuration(start)

	g, ctx := errgroup.WithContext(ctx)
	for _, ep := range AllEndpoints(userID) {
		g.Go(func() error {
			cursor := NewCursor(r.Fetcher, r.Archiver, ep, r.Log)
			stats, err := cursor.Run(ctx)
			evt := r.Log.Info()
			if err != nil {
				evt = r.Log.Error().Err(err)
			}
			evt.Str("endpoint", ep.Name).
				Int("fetched", stats.Returned).
				Int("loaded", stats.Saved).
				Str("min_id", stats.OldestID).
				Msg("backup stats")
			return err
		})
	}
	return g.Wait()
}
