package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database. dsn is the URL the migrations use;
// the driver specific form is derived from it.
func Open(databaseType string, dsn string) (*sql.DB, error) {
	var db *sql.DB
	var err error
	switch databaseType {
	case config.DATABASE_TYPE_POSTGRES:
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(10)
		}
	case config.DATABASE_TYPE_MYSQL:
		db, err = sql.Open("mysql", strings.TrimPrefix(dsn, "mysql://"))
		if err == nil {
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(10)
		}
	case config.DATABASE_TYPE_SQLLITE:
		file := strings.TrimPrefix(dsn, "sqlite3://")
		sep := "?"
		if strings.Contains(file, "?") {
			sep = "&"
		}
		db, err = sql.Open("sqlite3", file+sep+"_foreign_keys=on&_busy_timeout=5000")
		if err == nil {
			// one writer keeps SQLite from returning SQLITE_BUSY under the worker pool
			db.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("unsupported database type %q", databaseType)
	}
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
