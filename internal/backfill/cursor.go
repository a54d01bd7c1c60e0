// Package backfill pages backward through feed endpoints until exhaustion,
// persisting every item through the archive engine.
package backfill

import (
	"context"
	"math/big"
	"net/url"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"magpie/internal/archive"
	"magpie/internal/metrics"
	"magpie/internal/model"
)

// PageFetcher is the feed collaborator: one paginated list fetch.
type PageFetcher interface {
	FetchPage(ctx context.Context, path string, params url.Values) ([]model.Document, error)
}

// Stats accumulates per-endpoint backfill results.
type Stats struct {
	Returned int
	Saved    int
	OldestID string
}

// Cursor drives one endpoint from the newest item back to the beginning of
// the account's history.
type Cursor struct {
	fetcher  PageFetcher
	archiver *archive.Archiver
	endpoint Endpoint
	log      zerolog.Logger
}

func NewCursor(fetcher PageFetcher, archiver *archive.Archiver, endpoint Endpoint, log zerolog.Logger) *Cursor {
	return &Cursor{fetcher: fetcher, archiver: archiver, endpoint: endpoint, log: log}
}

// Run fetches pages until the endpoint returns an empty one. After each page
// the upper id bound becomes oldest-seen minus one; identifiers exceed int64
// precision so the decrement uses big integers. Items are persisted strictly
// in the order returned. The first persistence or transport error halts the
// run; partial stats always come back with the error.
func (c *Cursor) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	params := url.Values{}
	for k, v := range c.endpoint.Params {
		params[k] = append([]string(nil), v...)
	}
	for {
		items, err := c.fetcher.FetchPage(ctx, c.endpoint.Path, params)
		if err != nil {
			return stats, errors.Wrapf(err, "fetching %s", c.endpoint.Name)
		}
		metrics.PagesFetched.WithLabelValues(c.endpoint.Name).Inc()
		if len(items) == 0 {
			// Only an explicitly empty page means exhaustion; the API may
			// legitimately return short pages mid-history.
			return stats, nil
		}
		stats.Returned += len(items)
		for _, item := range items {
			if id := item.IDStr(); olderID(id, stats.OldestID) {
				stats.OldestID = id
			}
			outcome, err := c.archiver.Persist(ctx, c.endpoint.Kind, item)
			if err != nil {
				return stats, errors.Wrapf(err, "%s: item %s", c.endpoint.Name, item.IDStr())
			}
			if outcome == archive.OutcomeCreated {
				stats.Saved++
			}
		}
		if stats.OldestID == "" {
			return stats, errors.Errorf("%s: page carried no identifiers, cannot continue paging", c.endpoint.Name)
		}
		params.Set("max_id", decrementID(stats.OldestID))
	}
}

// olderID reports whether a is a valid identifier numerically older than b.
func olderID(a, b string) bool {
	if a == "" {
		return false
	}
	na, ok := new(big.Int).SetString(a, 10)
	if !ok {
		return false
	}
	if b == "" {
		return true
	}
	nb, ok := new(big.Int).SetString(b, 10)
	if !ok {
		return true
	}
	return na.Cmp(nb) < 0
}

func decrementID(id string) string {
	n, ok := new(big.Int).SetString(id, 10)
	if !ok {
		return id
	}
	return n.Sub(n, big.NewInt(1)).String()
}
