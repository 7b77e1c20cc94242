package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"biomagnet-assist/internal/platform/logger"
)

// OpenTest returns a migrated sqlite database living in t.TempDir.
func OpenTest(t testing.TB) *sql.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(context.Background(), DriverSQLite, dsn, logger.NewNop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := Migrate(db, DriverSQLite); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}
