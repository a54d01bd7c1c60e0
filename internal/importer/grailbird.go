// Package importer loads one-time exports into the archive. Importers have
// no pagination; every record goes through the same persistence engine as
// backfill. Per-item failures are tallied and skipped, since a bad record in
// a dump says nothing about the records after it.
package importer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"magpie/internal/archive"
	"magpie/internal/model"
)

// Stats tallies one import run.
type Stats struct {
	Read     int
	Saved    int
	Existing int
	Errors   int
}

// ImportArchive loads the official export's month files (data/js/tweets/
// *.js): a JavaScript assignment prefix followed by a JSON tweet array.
// Export data is sparser than API data and uses a different date format,
// which is rewritten so both produce comparable documents.
func ImportArchive(ctx context.Context, arch *archive.Archiver, dir string, log zerolog.Logger) (Stats, error) {
	var stats Stats
	entries, err := os.ReadDir(dir)
	if err != nil {
		return stats, errors.Wrap(err, "reading export directory")
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".js") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		tweets, err := readMonthFile(path)
		if err != nil {
			return stats, errors.Wrapf(err, "parsing %s", entry.Name())
		}
		log.Info().Str("file", entry.Name()).Int("tweets", len(tweets)).Msg("read month file")
		for _, tweet := range tweets {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			stats.Read++
			importTweet(ctx, arch, tweet, &stats, log)
		}
	}
	log.Info().Int("existing", stats.Existing).Int("saved", stats.Saved).
		Int("errors", stats.Errors).Int("total", stats.Read).Msg("archive import complete")
	return stats, nil
}

func importTweet(ctx context.Context, arch *archive.Archiver, tweet model.Document, stats *Stats, log zerolog.Logger) {
	if ts := tweet.Str("created_at"); ts != "" {
		tweet["created_at"] = normalizeDate(ts)
	}
	outcome, err := arch.Persist(ctx, model.KindTweet, tweet)
	switch {
	case err != nil:
		stats.Errors++
		log.Error().Err(err).Str("tweet", tweet.IDStr()).Msg("import failed")
	case outcome == archive.OutcomeAlreadyPresent:
		stats.Existing++
	default:
		stats.Saved++
	}
}

// readMonthFile strips the leading "Grailbird.data.tweets_YYYY_MM = "
// assignment and decodes the remaining JSON array.
func readMonthFile(path string) ([]model.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	start := bytes.IndexByte(b, '[')
	if start < 0 {
		return nil, errors.New("no JSON array found")
	}
	return model.DecodeDocuments(b[start:])
}

// normalizeDate rewrites the export date format to the API's format.
//
//	input:  "2008-11-11 12:34:56 +0000"
//	output: "Tue Nov 11 12:34:56 +0000 2008"
//
// Dates already in API format (or unparseable) pass through untouched.
func normalizeDate(s string) string {
	t, err := time.Parse("2006-01-02 15:04:05 -0700", s)
	if err != nil {
		return s
	}
	return t.Format(time.RubyDate)
}
