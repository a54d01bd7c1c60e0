package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"magpie/internal/archive"
	"magpie/internal/store/sqlitedoc"
)

func newTestArchive(t *testing.T) (*archive.Archiver, *sqlitedoc.DB) {
	t.Helper()
	db, err := sqlitedoc.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return archive.New(db, zerolog.Nop()), db
}

const monthFile = `Grailbird.data.tweets_2008_11 = [
  {"id_str": "105", "text": "first", "created_at": "2008-11-11 12:34:56 +0000"},
  {"id_str": "104", "text": "second", "created_at": "2008-11-10 08:00:00 +0000"}
]`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestImportArchive(t *testing.T) {
	arch, db := newTestArchive(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "2008_11.js", monthFile)
	writeFile(t, dir, "README.txt", "not a month file")

	stats, err := ImportArchive(ctx, arch, dir, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, Stats{Read: 2, Saved: 2}, stats)

	doc, _, err := db.Get(ctx, "tweet:105")
	require.NoError(t, err)
	// Export dates are rewritten to the API format.
	require.Equal(t, "Tue Nov 11 12:34:56 +0000 2008", doc.Str("created_at"))

	// A second pass finds everything already archived.
	stats, err = ImportArchive(ctx, arch, dir, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, Stats{Read: 2, Existing: 2}, stats)
}

func TestImportArchiveRejectsGarbageFile(t *testing.T) {
	arch, _ := newTestArchive(t)
	dir := t.TempDir()
	writeFile(t, dir, "2009_01.js", "Grailbird.data.tweets_2009_01 = null")

	_, err := ImportArchive(context.Background(), arch, dir, zerolog.Nop())
	require.Error(t, err)
}

func TestImportLines(t *testing.T) {
	arch, db := newTestArchive(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dump.jsonl")
	content := `{"id": 105, "text": "kept", "topsy": {"vendor": true}, "score": 1.5}

{"id_str": "104", "text": "also kept", "firstpost_date": 1226404496}
not json at all
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	stats, err := ImportLines(ctx, arch, path, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, Stats{Read: 3, Saved: 2, Errors: 1}, stats)

	doc, _, err := db.Get(ctx, "tweet:105")
	require.NoError(t, err)
	require.Equal(t, "105", doc.Str("id_str"))
	for _, vendor := range vendorFields {
		require.NotContains(t, doc, vendor)
	}
}

func TestNormalizeDate(t *testing.T) {
	require.Equal(t, "Tue Nov 11 12:34:56 +0000 2008", normalizeDate("2008-11-11 12:34:56 +0000"))
	// API-format dates pass through untouched.
	require.Equal(t, "Tue Nov 11 12:34:56 +0000 2008", normalizeDate("Tue Nov 11 12:34:56 +0000 2008"))
}
