// Package sqlitedoc implements the document store over a single SQLite file.
// Revisions follow the CouchDB "{seq}-{token}" shape so the conflict
// discipline is identical across backends.
package sqlitedoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"magpie/internal/model"
	"magpie/internal/store"
)

// DB wraps a SQLite database used as a revisioned document store.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases coherent and serializes writers.
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS documents (
	  id   TEXT PRIMARY KEY,
	  seq  INTEGER NOT NULL,
	  rev  TEXT NOT NULL,
	  body TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(json_extract(body, '$.type'));
	CREATE TABLE IF NOT EXISTS attachments (
	  doc_id       TEXT NOT NULL,
	  name         TEXT NOT NULL,
	  content_type TEXT NOT NULL,
	  data         BLOB NOT NULL,
	  PRIMARY KEY (doc_id, name)
	);
	`)
	return err
}

func newRev(seq int64) string {
	return fmt.Sprintf("%d-%s", seq, uuid.NewString())
}

func (d *DB) Insert(ctx context.Context, key string, doc model.Document) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrapf(err, "encode %s", key)
	}
	rev := newRev(1)
	res, err := d.sql.ExecContext(ctx,
		`INSERT OR IGNORE INTO documents(id, seq, rev, body) VALUES(?,?,?,?)`,
		key, 1, rev, string(body))
	if err != nil {
		return "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", store.ErrConflict
	}
	return rev, nil
}

func (d *DB) Get(ctx context.Context, key string) (model.Document, string, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT rev, body FROM documents WHERE id=?`, key)
	var rev, body string
	if err := row.Scan(&rev, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", store.ErrNotFound
		}
		return nil, "", err
	}
	doc, err := model.DecodeDocument([]byte(body))
	if err != nil {
		return nil, "", errors.Wrapf(err, "decode %s", key)
	}
	return doc, rev, nil
}

func (d *DB) Save(ctx context.Context, key, rev string, doc model.Document) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrapf(err, "encode %s", key)
	}
	return d.bump(ctx, key, rev, func(seq int64) (string, []any) {
		next := newRev(seq)
		return `UPDATE documents SET seq=?, rev=?, body=? WHERE id=? AND rev=?`,
			[]any{seq, next, string(body), key, rev}
	})
}

func (d *DB) Delete(ctx context.Context, key, rev string) error {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM documents WHERE id=? AND rev=?`, key, rev)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return d.missOrConflict(ctx, key)
	}
	_, err = d.sql.ExecContext(ctx, `DELETE FROM attachments WHERE doc_id=?`, key)
	return err
}

func (d *DB) FindAccountsByHandle(ctx context.Context, handle string) ([]model.Document, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT body FROM documents
		 WHERE json_extract(body, '$.type')='user' AND json_extract(body, '$.screen_name')=?`,
		handle)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

func (d *DB) PendingBackups(ctx context.Context, kind model.Kind, limit int) ([]model.Document, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT body FROM documents
		 WHERE json_extract(body, '$.needs_backup') AND json_extract(body, '$.type')=?
		 ORDER BY id LIMIT ?`,
		string(kind), limit)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

func (d *DB) SaveAttachment(ctx context.Context, key, rev, name, contentType string, data []byte) (string, error) {
	if _, err := d.sql.ExecContext(ctx,
		`INSERT INTO attachments(doc_id, name, content_type, data) VALUES(?,?,?,?)
		 ON CONFLICT(doc_id, name) DO UPDATE SET content_type=excluded.content_type, data=excluded.data`,
		key, name, contentType, data); err != nil {
		return "", err
	}
	// Attaching bumps the document revision, matching CouchDB behavior.
	return d.bump(ctx, key, rev, func(seq int64) (string, []any) {
		next := newRev(seq)
		return `UPDATE documents SET seq=?, rev=? WHERE id=? AND rev=?`,
			[]any{seq, next, key, rev}
	})
}

// Attachment reads back attached content, mainly for tests and verification.
func (d *DB) Attachment(ctx context.Context, key, name string) ([]byte, string, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT data, content_type FROM attachments WHERE doc_id=? AND name=?`, key, name)
	var data []byte
	var ct string
	if err := row.Scan(&data, &ct); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", store.ErrNotFound
		}
		return nil, "", err
	}
	return data, ct, nil
}

// bump runs a revision-guarded update, returning the next revision token.
func (d *DB) bump(ctx context.Context, key, rev string, stmt func(seq int64) (string, []any)) (string, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT seq FROM documents WHERE id=? AND rev=?`, key, rev)
	var seq int64
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", d.missOrConflict(ctx, key)
		}
		return "", err
	}
	q, args := stmt(seq + 1)
	res, err := d.sql.ExecContext(ctx, q, args...)
	if err != nil {
		return "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", d.missOrConflict(ctx, key)
	}
	return args[1].(string), nil
}

func (d *DB) missOrConflict(ctx context.Context, key string) error {
	row := d.sql.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id=?`, key)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	return store.ErrConflict
}

func scanDocuments(rows *sql.Rows) ([]model.Document, error) {
	defer rows.Close()
	var out []model.Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		doc, err := model.DecodeDocument([]byte(body))
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}
