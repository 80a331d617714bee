// Package testdb provides in-memory databases for tests.
package testdb

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/skyward-school/skyward/internal/db"
	"github.com/skyward-school/skyward/internal/db/migrate"
	"github.com/skyward-school/skyward/migrations"
)

// RunWhile returns an in-memory database with all migrations applied.
// The database is closed when the test finishes.
//
// Every connection to ":memory:" opens its own database, so the write
// settings (a single connection) are always used. Pass the returned
// database as both the read and the write pool.
func RunWhile(t *testing.T) *sql.DB {
	t.Helper()

	conn := RunUnmigratedWhile(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := migrate.RunFS(ctx, conn, migrations.FS, migrate.Metadata{AppVersion: "test"})
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return conn
}

// RunUnmigratedWhile returns an empty in-memory database.
func RunUnmigratedWhile(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenSQLite(":memory:", true)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		err := conn.Close()
		if err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})

	return conn
}
