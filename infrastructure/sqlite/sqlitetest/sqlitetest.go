// Package sqlitetest opens throwaway migrated databases for tests.
package sqlitetest

import (
	"context"
	"path/filepath"
	"testing"

	"baletrack/infrastructure/sqlite"
)

// Open returns a migrated database in t.TempDir, closed on cleanup.
func Open(t testing.TB) *sqlite.DB {
	t.Helper()
	db, err := sqlite.OpenDB(filepath.Join(t.TempDir(), "baletrack-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := sqlite.ApplyEmbeddedMigrations(context.Background(), db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

// Exec runs raw statements in one write transaction, for seeding fixtures.
func Exec(t testing.TB, db *sqlite.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.WriteSQL.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// Count runs a COUNT query on the reader.
func Count(t testing.TB, db *sqlite.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.ReadSQL.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}
