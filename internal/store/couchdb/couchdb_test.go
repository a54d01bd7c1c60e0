package couchdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"magpie/internal/model"
	"magpie/internal/store"
)

// fakeCouch is the slice of the CouchDB document API the client touches.
type fakeCouch struct {
	mu   sync.Mutex
	db   bool
	docs map[string]model.Document // stored with _rev
	seq  int
}

func newFakeCouch() *fakeCouch {
	return &fakeCouch{docs: map[string]model.Document{}}
}

func (f *fakeCouch) nextRev() string {
	f.seq++
	return fmt.Sprintf("%d-fake", f.seq)
}

func (f *fakeCouch) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
		if len(parts) == 1 || parts[1] == "" {
			f.handleDB(w, r)
			return
		}
		f.handleDoc(w, r, parts[1])
	})
}

func (f *fakeCouch) handleDB(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead, http.MethodGet:
		if !f.db {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		f.db = true
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"ok":true}`)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeCouch) handleDoc(w http.ResponseWriter, r *http.Request, key string) {
	switch r.Method {
	case http.MethodGet:
		doc, ok := f.docs[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"not_found"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(doc)
	case http.MethodPut:
		var doc model.Document
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if existing, ok := f.docs[key]; ok && doc.Str("_rev") != existing.Str("_rev") {
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"error":"conflict"}`)
			return
		}
		rev := f.nextRev()
		doc["_id"] = key
		doc["_rev"] = rev
		f.docs[key] = doc
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"ok":true,"id":%q,"rev":%q}`, key, rev)
	case http.MethodDelete:
		existing, ok := f.docs[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"not_found"}`)
			return
		}
		if r.URL.Query().Get("rev") != existing.Str("_rev") {
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"error":"conflict"}`)
			return
		}
		delete(f.docs, key)
		fmt.Fprint(w, `{"ok":true}`)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeCouch) {
	t.Helper()
	couch := newFakeCouch()
	ts := httptest.NewServer(couch.handler())
	t.Cleanup(ts.Close)
	return New(ts.URL, "archive", "", "", zerolog.Nop()), couch
}

func TestDocumentRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	rev, err := c.Insert(ctx, "tweet:1", model.Document{"id_str": "1", "text": "a"})
	if err != nil {
		t.Fatal(err)
	}
	if rev == "" {
		t.Fatal("insert returned no revision")
	}
	if _, err := c.Insert(ctx, "tweet:1", model.Document{"id_str": "1"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	doc, gotRev, err := c.Get(ctx, "tweet:1")
	if err != nil {
		t.Fatal(err)
	}
	if gotRev != rev {
		t.Fatalf("rev mismatch: %q vs %q", gotRev, rev)
	}
	// Storage internals never leak into documents.
	if _, ok := doc["_id"]; ok {
		t.Fatal("_id leaked")
	}
	if _, ok := doc["_rev"]; ok {
		t.Fatal("_rev leaked")
	}

	rev2, err := c.Save(ctx, "tweet:1", rev, model.Document{"id_str": "1", "text": "b"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Save(ctx, "tweet:1", rev, model.Document{"id_str": "1"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("stale save: expected ErrConflict, got %v", err)
	}
	if err := c.Delete(ctx, "tweet:1", rev2); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Get(ctx, "tweet:1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEnsureDatabaseCreatesEverything(t *testing.T) {
	c, couch := newTestClient(t)
	ctx := context.Background()

	if err := c.EnsureDatabase(ctx); err != nil {
		t.Fatal(err)
	}
	if !couch.db {
		t.Fatal("database not created")
	}
	for _, key := range []string{"_design/users", "_design/backup"} {
		if _, ok := couch.docs[key]; !ok {
			t.Fatalf("missing design doc %s", key)
		}
	}

	// A second run against the existing database is a no-op, not an error.
	if err := c.EnsureDatabase(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestViewQuery(t *testing.T) {
	var gotPath, gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"total_rows":2,"rows":[
			{"id":"tweet:100","key":"tweet","doc":{"_id":"tweet:100","_rev":"1-x","type":"tweet","id_str":"100","needs_backup":true}},
			{"id":"tweet:200","key":"tweet","doc":{"_id":"tweet:200","_rev":"1-y","type":"tweet","id_str":"200","needs_backup":true}}
		]}`)
	}))
	defer ts.Close()

	c := New(ts.URL, "archive", "", "", zerolog.Nop())
	docs, err := c.PendingBackups(context.Background(), model.KindTweet, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].IDStr() != "100" {
		t.Fatalf("unexpected docs: %v", docs)
	}
	if _, ok := docs[0]["_rev"]; ok {
		t.Fatal("_rev leaked from view")
	}
	if gotPath != "/archive/_design/backup/_view/queue" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if !strings.Contains(gotQuery, "limit=5") || !strings.Contains(gotQuery, "include_docs=true") {
		t.Fatalf("unexpected query %q", gotQuery)
	}
}
