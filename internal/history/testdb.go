package history

import (
	"database/sql"
	"testing"
)

// OpenTestDB opens an in-memory database that is closed when t finishes
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
