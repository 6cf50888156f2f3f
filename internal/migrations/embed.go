package migrations

import (
	"embed"
	"errors"
	"io/fs"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed postgres mysql sqlite3
var FS embed.FS

// Up applies every embedded migration for dialect (the sub folder name) to the
// database at dbURL. An already current schema is not an error.
func Up(dialect string, dbURL string) error {
	m, err := newMigrate(dialect, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Down rolls back every migration. Only used by tests and the migrate command.
func Down(dialect string, dbURL string) error {
	m, err := newMigrate(dialect, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func newMigrate(dialect string, dbURL string) (*migrate.Migrate, error) {
	sub, err := fs.Sub(FS, dialect)
	if err != nil {
		return nil, err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, err
	}
	return migrate.NewWithSourceInstance("iofs", source, dbURL)
}
