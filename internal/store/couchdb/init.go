package couchdb

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"magpie/internal/model"
	"magpie/internal/store"
)

// designDocs are the views the archiver depends on: the screen-name index
// used to dedupe handle-only account placeholders, and the backup queue
// scanned by the drain job.
var designDocs = map[string]model.Document{
	"_design/users": {
		"language": "javascript",
		"views": model.Document{
			"screenName": model.Document{
				"map": `function (doc) {
					if (doc.type === 'user' && doc.screen_name) {
						emit(doc.screen_name, null);
					}
				}`,
			},
		},
	},
	"_design/backup": {
		"language": "javascript",
		"views": model.Document{
			"queue": model.Document{
				"map": `function (doc) {
					if (doc.needs_backup) {
						emit(doc.type, null);
					}
				}`,
			},
		},
	},
}

// EnsureDatabase creates the database and its design documents if missing.
// It blocks until the store is usable; backfill must not start before it
// returns.
func (c *Client) EnsureDatabase(ctx context.Context) error {
	dbURL := c.baseURL + "/" + c.database
	resp, err := c.do(ctx, http.MethodHead, dbURL, nil, "")
	if err != nil {
		return errors.Wrap(err, "checking database")
	}
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.log.Info().Str("database", c.database).Msg("creating database")
		create, err := c.do(ctx, http.MethodPut, dbURL, nil, "")
		if err != nil {
			return errors.Wrap(err, "creating database")
		}
		create.Body.Close()
		if create.StatusCode >= 400 && create.StatusCode != http.StatusPreconditionFailed {
			return errors.Errorf("creating database: status %d", create.StatusCode)
		}
	case resp.StatusCode >= 400:
		return errors.Errorf("checking database: status %d", resp.StatusCode)
	}
	return c.ensureViews(ctx)
}

func (c *Client) ensureViews(ctx context.Context) error {
	for key, doc := range designDocs {
		_, err := c.Insert(ctx, key, doc)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrConflict) {
			return errors.Wrapf(err, "creating %s", key)
		}
		existing, rev, err := c.Get(ctx, key)
		if err != nil {
			return errors.Wrapf(err, "reading %s", key)
		}
		if sameViews(existing, doc) {
			continue
		}
		if _, err := c.Save(ctx, key, rev, doc); err != nil {
			return errors.Wrapf(err, "updating %s", key)
		}
	}
	return nil
}

func sameViews(a, b model.Document) bool {
	av, bv := a.Sub("views"), b.Sub("views")
	if len(av) != len(bv) {
		return false
	}
	for name, view := range bv {
		want := asViewMap(view)
		got := asViewMap(av[name])
		if got == nil || got.Str("map") != want.Str("map") {
			return false
		}
	}
	return true
}

func asViewMap(v any) model.Document {
	if m, ok := v.(model.Document); ok {
		return m
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}
