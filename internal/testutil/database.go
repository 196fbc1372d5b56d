package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SetupTestDB connects to the database named by TEST_DATABASE_URL. The test
// is skipped when the variable is unset.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Fatalf("Failed to ping test database: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// SetupTestSchema returns the name of a schema unique to this test. The
// schema and everything in it is dropped when the test ends.
func SetupTestSchema(t *testing.T, db *sql.DB) string {
	t.Helper()

	schema := "telemed_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	t.Cleanup(func() {
		_, err := db.ExecContext(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pq.QuoteIdentifier(schema)))
		if err != nil {
			t.Logf("Warning: Failed to drop schema %s: %v", schema, err)
		}
	})
	return schema
}
