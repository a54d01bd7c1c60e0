package backfill

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"magpie/internal/archive"
	"magpie/internal/model"
	"magpie/internal/store/sqlitedoc"
)

type fakeFeed struct {
	mu    sync.Mutex
	pages [][]model.Document
	calls []url.Values
	err   error
}

func (f *fakeFeed) FetchPage(ctx context.Context, path string, params url.Values) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := url.Values{}
	for k, v := range params {
		seen[k] = append([]string(nil), v...)
	}
	f.calls = append(f.calls, seen)
	if len(f.pages) == 0 {
		if f.err != nil {
			return nil, f.err
		}
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func tweet(id string) model.Document {
	return model.Document{"id_str": id, "text": "t" + id}
}

func newTestStore(t *testing.T) *sqlitedoc.DB {
	t.Helper()
	db, err := sqlitedoc.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCursorPagesUntilEmpty(t *testing.T) {
	db := newTestStore(t)
	arch := archive.New(db, zerolog.Nop())
	feed := &fakeFeed{pages: [][]model.Document{
		{tweet("5"), tweet("4")},
		{tweet("3")},
		{tweet("2")},
	}}
	ep := Timeline("1")

	stats, err := NewCursor(feed, arch, ep, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Stats{Returned: 4, Saved: 4, OldestID: "2"}, stats)

	// The empty page is the only exhaustion signal: three short pages still
	// mean three more fetches, each bounded by oldest-seen minus one.
	require.Len(t, feed.calls, 4)
	require.Empty(t, feed.calls[0].Get("max_id"))
	require.Equal(t, "3", feed.calls[1].Get("max_id"))
	require.Equal(t, "2", feed.calls[2].Get("max_id"))
	require.Equal(t, "1", feed.calls[3].Get("max_id"))

	// The shared endpoint definition must stay untouched.
	require.Empty(t, ep.Params.Get("max_id"))
}

func TestCursorRepeatRunIsIdempotent(t *testing.T) {
	db := newTestStore(t)
	arch := archive.New(db, zerolog.Nop())

	first := &fakeFeed{pages: [][]model.Document{{tweet("5"), tweet("4")}}}
	stats, err := NewCursor(first, arch, Timeline("1"), zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.Saved)

	second := &fakeFeed{pages: [][]model.Document{{tweet("5"), tweet("4")}}}
	stats, err = NewCursor(second, arch, Timeline("1"), zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.Returned)
	require.Equal(t, 0, stats.Saved)
}

func TestCursorHaltsOnTransportError(t *testing.T) {
	db := newTestStore(t)
	arch := archive.New(db, zerolog.Nop())
	feed := &fakeFeed{
		pages: [][]model.Document{{tweet("5")}},
		err:   errors.New("connection reset"),
	}

	stats, err := NewCursor(feed, arch, Timeline("1"), zerolog.Nop()).Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "user timeline")
	// Partial stats survive the failure.
	require.Equal(t, 1, stats.Returned)
	require.Equal(t, 1, stats.Saved)
}

func TestCursorHaltsOnPersistError(t *testing.T) {
	db := newTestStore(t)
	arch := archive.New(db, zerolog.Nop())
	feed := &fakeFeed{pages: [][]model.Document{
		{tweet("5"), {"text": "no identifier"}},
	}}

	stats, err := NewCursor(feed, arch, Timeline("1"), zerolog.Nop()).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 2, stats.Returned)
	require.Equal(t, 1, stats.Saved)
}

func TestCursorEndToEnd(t *testing.T) {
	db := newTestStore(t)
	arch := archive.New(db, zerolog.Nop())
	ctx := context.Background()

	reply := model.Document{
		"id_str":                    "105",
		"text":                      "@seven hi",
		"in_reply_to_status_id_str": "100",
		"entities": map[string]any{
			"user_mentions": []any{map[string]any{"id_str": "7", "screen_name": "seven"}},
		},
	}
	feed := &fakeFeed{pages: [][]model.Document{{reply, tweet("104")}}}

	stats, err := NewCursor(feed, arch, Mentions(), zerolog.Nop()).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Returned)
	require.Equal(t, 2, stats.Saved)
	require.Equal(t, "104", stats.OldestID)

	for _, key := range []string{"tweet:105", "tweet:104"} {
		doc, _, err := db.Get(ctx, key)
		require.NoError(t, err, key)
		require.False(t, doc.NeedsBackup(), key)
	}
	for _, key := range []string{"tweet:100", "user:7"} {
		doc, _, err := db.Get(ctx, key)
		require.NoError(t, err, key)
		require.True(t, doc.NeedsBackup(), key)
	}
}

func TestOlderID(t *testing.T) {
	require.True(t, olderID("99", ""))
	require.True(t, olderID("99", "100"))
	require.False(t, olderID("100", "99"))
	require.False(t, olderID("", "99"))
	require.False(t, olderID("not-a-number", "99"))
	// Ids exceed int64; comparison must stay exact.
	require.True(t, olderID("9223372036854775808", "9223372036854775809"))
	require.Equal(t, "9223372036854775807", decrementID("9223372036854775808"))
}
