// Package store defines the document-store contract shared by the CouchDB
// and SQLite backends. All mutation goes through optimistic concurrency:
// writes against an existing key must carry the current revision token.
package store

import (
	"context"
	"errors"

	"magpie/internal/model"
)

var (
	// ErrConflict is returned when a key is already occupied (fresh insert)
	// or the supplied revision is stale (save/delete).
	ErrConflict = errors.New("document conflict")
	// ErrNotFound is returned when no document exists at the key.
	ErrNotFound = errors.New("document not found")
)

// Store is a revisioned document store.
type Store interface {
	// Insert writes a new document. Fails with ErrConflict if the key exists.
	Insert(ctx context.Context, key string, doc model.Document) (rev string, err error)

	// Get reads a document and its current revision.
	Get(ctx context.Context, key string) (model.Document, string, error)

	// Save overwrites an existing document. rev must be the current revision.
	Save(ctx context.Context, key, rev string, doc model.Document) (string, error)

	// Delete removes a document at the given revision.
	Delete(ctx context.Context, key, rev string) error

	// FindAccountsByHandle returns user documents whose screen_name matches.
	FindAccountsByHandle(ctx context.Context, handle string) ([]model.Document, error)

	// PendingBackups returns up to limit backup-queue placeholders of a kind.
	PendingBackups(ctx context.Context, kind model.Kind, limit int) ([]model.Document, error)

	// SaveAttachment attaches binary content to an existing document.
	SaveAttachment(ctx context.Context, key, rev, name, contentType string, data []byte) (string, error)
}
