package backfill

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"magpie/internal/archive"
	"magpie/internal/metrics"
	"magpie/internal/model"
	"magpie/internal/store"
)

// ItemFetcher is the feed collaborator for single-entity fetches.
type ItemFetcher interface {
	FetchOne(ctx context.Context, path string) (model.Document, error)
	LookupUsers(ctx context.Context, ids, screenNames []string) ([]model.Document, error)
}

// Drainer works off the backup queue: placeholders written by reference
// discovery are resolved into full entities. Fetch failures for individual
// entries are logged and skipped; the queue is retried on the next run.
type Drainer struct {
	Store    store.Store
	Fetcher  ItemFetcher
	Archiver *archive.Archiver
	HTTP     *http.Client
	Log      zerolog.Logger
}

// DrainStats tallies one drain pass.
type DrainStats struct {
	Tweets int
	Users  int
	Media  int
	Errors int
}

// Drain resolves up to limit placeholders per kind.
func (d *Drainer) Drain(ctx context.Context, limit int) (DrainStats, error) {
	var stats DrainStats
	if err := d.drainTweets(ctx, limit, &stats); err != nil {
		return stats, err
	}
	if err := d.drainUsers(ctx, limit, &stats); err != nil {
		return stats, err
	}
	if err := d.drainMedia(ctx, limit, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (d *Drainer) drainTweets(ctx context.Context, limit int, stats *DrainStats) error {
	pending, err := d.Store.PendingBackups(ctx, model.KindTweet, limit)
	if err != nil {
		return errors.Wrap(err, "scanning tweet queue")
	}
	for _, placeholder := range pending {
		id := placeholder.IDStr()
		if id == "" {
			continue
		}
		tweet, err := d.Fetcher.FetchOne(ctx, fmt.Sprintf("/statuses/show/%s.json", id))
		if err != nil {
			stats.Errors++
			d.Log.Error().Err(err).Str("tweet", id).Msg("fetching queued tweet")
			continue
		}
		metrics.DrainFetches.WithLabelValues(string(model.KindTweet)).Inc()
		// Persisting supersedes the placeholder through the conflict policy.
		if _, err := d.Archiver.Persist(ctx, model.KindTweet, tweet); err != nil {
			stats.Errors++
			d.Log.Error().Err(err).Str("tweet", id).Msg("archiving queued tweet")
			continue
		}
		stats.Tweets++
	}
	return nil
}

func (d *Drainer) drainUsers(ctx context.Context, limit int, stats *DrainStats) error {
	pending, err := d.Store.PendingBackups(ctx, model.KindUser, limit)
	if err != nil {
		return errors.Wrap(err, "scanning user queue")
	}
	var ids, names []string
	for _, placeholder := range pending {
		if id := placeholder.IDStr(); id != "" {
			ids = append(ids, id)
		} else if name := placeholder.Str("screen_name"); name != "" {
			names = append(names, name)
		}
	}
	if len(ids) == 0 && len(names) == 0 {
		return nil
	}
	users, err := d.Fetcher.LookupUsers(ctx, ids, names)
	if err != nil {
		stats.Errors++
		d.Log.Error().Err(err).Int("ids", len(ids)).Int("names", len(names)).Msg("looking up queued users")
		return nil
	}
	metrics.DrainFetches.WithLabelValues(string(model.KindUser)).Add(float64(len(users)))
	for _, user := range users {
		// Persist supersedes id-keyed placeholders and reconciles away any
		// handle-keyed ones.
		if _, err := d.Archiver.Persist(ctx, model.KindUser, user); err != nil {
			stats.Errors++
			d.Log.Error().Err(err).Str("user", user.IDStr()).Msg("archiving queued user")
			continue
		}
		stats.Users++
	}
	return nil
}

// drainMedia downloads each queued attachment from its recorded source URL
// and stores the bytes as an attachment on the owning tweet document, then
// deletes the placeholder.
func (d *Drainer) drainMedia(ctx context.Context, limit int, stats *DrainStats) error {
	pending, err := d.Store.PendingBackups(ctx, model.KindMedia, limit)
	if err != nil {
		return errors.Wrap(err, "scanning media queue")
	}
	client := d.HTTP
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	for _, placeholder := range pending {
		id := placeholder.IDStr()
		srcURL := placeholder.Str("media_url")
		tweetKey := placeholder.Str("tweet")
		if id == "" || srcURL == "" || tweetKey == "" {
			continue
		}
		data, contentType, err := download(ctx, client, srcURL)
		if err != nil {
			stats.Errors++
			d.Log.Error().Err(err).Str("media", id).Str("url", srcURL).Msg("downloading media")
			continue
		}
		metrics.DrainFetches.WithLabelValues(string(model.KindMedia)).Inc()
		_, tweetRev, err := d.Store.Get(ctx, tweetKey)
		if err != nil {
			stats.Errors++
			d.Log.Error().Err(err).Str("media", id).Str("tweet", tweetKey).Msg("reading owning tweet")
			continue
		}
		if _, err := d.Store.SaveAttachment(ctx, tweetKey, tweetRev, id, contentType, data); err != nil {
			stats.Errors++
			d.Log.Error().Err(err).Str("media", id).Str("tweet", tweetKey).Msg("attaching media")
			continue
		}
		if err := d.deletePlaceholder(ctx, model.KeyFor(model.KindMedia, id)); err != nil {
			stats.Errors++
			d.Log.Error().Err(err).Str("media", id).Msg("removing media placeholder")
			continue
		}
		stats.Media++
	}
	return nil
}

func (d *Drainer) deletePlaceholder(ctx context.Context, key string) error {
	_, rev, err := d.Store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := d.Store.Delete(ctx, key, rev); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

func download(ctx context.Context, client *http.Client, srcURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, "", errors.Errorf("status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}
