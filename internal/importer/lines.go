package importer

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"magpie/internal/archive"
	"magpie/internal/model"
)

// vendorFields are envelope fields added by third-party export services and
// not part of the tweet itself.
var vendorFields = []string{"topsy", "score", "firstpost_date"}

// ImportLines loads a line-delimited JSON dump, one tweet per line. These
// dumps sometimes carry only a numeric id; the persistence engine coerces it
// to id_str before storage.
func ImportLines(ctx context.Context, arch *archive.Archiver, path string, log zerolog.Logger) (Stats, error) {
	var stats Stats
	f, err := os.Open(path)
	if err != nil {
		return stats, errors.Wrap(err, "opening dump")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		stats.Read++
		tweet, err := model.DecodeDocument([]byte(text))
		if err != nil {
			stats.Errors++
			log.Error().Err(err).Int("line", line).Msg("undecodable line")
			continue
		}
		for _, field := range vendorFields {
			delete(tweet, field)
		}
		importTweet(ctx, arch, tweet, &stats, log)
	}
	if err := scanner.Err(); err != nil {
		return stats, errors.Wrap(err, "reading dump")
	}
	log.Info().Int("existing", stats.Existing).Int("saved", stats.Saved).
		Int("errors", stats.Errors).Int("total", stats.Read).Msg("line import complete")
	return stats, nil
}
