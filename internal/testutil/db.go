package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/courseflow/internal/config"
	"github.com/RealZimboGuy/courseflow/internal/migrations"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB returns a migrated SQLite database in a temp dir and points the
// dialect helpers at it for the duration of the test.
func NewSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	t.Setenv(config.DATABASE_TYPE, config.DATABASE_TYPE_SQLLITE)

	file := filepath.Join(t.TempDir(), "courseflow.db")
	require.NoError(t, migrations.Up("sqlite3", "sqlite3://"+file))

	db, err := sql.Open("sqlite3", file+"?_foreign_keys=on&_busy_timeout=5000")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, db.Ping())
	t.Cleanup(func() { db.Close() })
	return db
}
