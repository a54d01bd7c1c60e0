package model

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// Document is a raw JSON object as fetched from the API or an export file.
// The archive preserves every field the platform returns, so documents stay
// schemaless; accessors below cover the handful of fields the engine reads.
type Document map[string]any

// DecodeDocument parses a JSON object. Numbers are kept as json.Number so
// 64-bit identifiers do not lose precision through float64.
func DecodeDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var d Document
	if err := dec.Decode(&d); err != nil {
		return nil, err
	}
	return d, nil
}

// DecodeDocuments parses a JSON array of objects, keeping numbers as json.Number.
func DecodeDocuments(data []byte) ([]Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []Document
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Str returns the field as a string, rendering numbers as their literal form.
func (d Document) Str(key string) string {
	switch v := d[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// Bool returns the field as a bool, false when absent or of another type.
func (d Document) Bool(key string) bool {
	v, _ := d[key].(bool)
	return v
}

// Sub returns a nested object field, nil when absent.
func (d Document) Sub(key string) Document {
	return asDocument(d[key])
}

// List returns an array field's object elements.
func (d Document) List(key string) []Document {
	raw, ok := d[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Document, 0, len(raw))
	for _, v := range raw {
		if sub := asDocument(v); sub != nil {
			out = append(out, sub)
		}
	}
	return out
}

func asDocument(v any) Document {
	switch m := v.(type) {
	case Document:
		return m
	case map[string]any:
		return Document(m)
	}
	return nil
}

// IDStr returns the canonical string identifier: id_str when present,
// otherwise a numeric id rendered as a string. Empty when neither exists.
func (d Document) IDStr() string {
	if s := d.Str("id_str"); s != "" {
		return s
	}
	return d.Str("id")
}

// NeedsBackup reports whether the document is a backup-queue placeholder.
func (d Document) NeedsBackup() bool {
	return d.Bool("needs_backup")
}

// Key computes the storage key for the document under the given kind.
// Users with no numeric id fall back to a screen_name-derived key; that key
// is reconciled away once the full user is archived.
func (d Document) Key(k Kind) (string, error) {
	if id := d.IDStr(); id != "" {
		return KeyFor(k, id), nil
	}
	if k == KindUser {
		if name := d.Str("screen_name"); name != "" {
			return KeyFor(k, name), nil
		}
	}
	return "", errors.Errorf("%s document has no identifier", k)
}
