package archive

import (
	"testing"

	"magpie/internal/model"
)

func TestStripEmpty(t *testing.T) {
	doc := model.Document{
		"id_str":       "1",
		"text":         "keep",
		"source":       "",
		"geo":          nil,
		"coordinates":  map[string]any{},
		"contributors": []any{},
		"entities": map[string]any{
			"hashtags": []any{},
			"urls":     []any{map[string]any{"url": "https://x", "expanded_url": ""}},
		},
	}
	stripEmpty(doc)

	for _, gone := range []string{"source", "geo", "coordinates", "contributors"} {
		if _, ok := doc[gone]; ok {
			t.Fatalf("field %q should have been stripped", gone)
		}
	}
	urls := doc.Sub("entities").List("urls")
	if len(urls) != 1 {
		t.Fatalf("expected urls kept, got %v", doc["entities"])
	}
	if _, ok := urls[0]["expanded_url"]; ok {
		t.Fatalf("nested empty string should have been stripped")
	}
	if doc.Str("text") != "keep" {
		t.Fatalf("non-empty field lost")
	}
}

func TestTrimmedUser(t *testing.T) {
	ref := trimmedUser(model.Document{"id_str": "9", "name": "Nine", "followers_count": 3})
	if ref.IDStr() != "9" {
		t.Fatalf("expected id_str kept, got %v", ref)
	}
	if len(ref) != 1 {
		t.Fatalf("expected only identifier fields, got %v", ref)
	}
}
