package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/config"
	"github.com/RealZimboGuy/courseflow/internal/domain"
)

func databaseType() string {
	return config.GetSystemSettingString(config.DATABASE_TYPE)
}

// placeholder returns the correct bind variable for the given index based on DB type.
// Postgres uses $1, $2... while MySQL and SQLite use ?
func placeholder(i int) string {
	if databaseType() == config.DATABASE_TYPE_POSTGRES {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// placeholders returns n comma separated bind variables starting at index start.
func placeholders(start, n int) string {
	pps := make([]string, n)
	for i := range pps {
		pps[i] = placeholder(start + i)
	}
	return strings.Join(pps, ", ")
}

// formatDateInDatabase renders t the way each driver compares it reliably.
// SQLite stores TEXT, so every value must share one layout.
func formatDateInDatabase(t time.Time) interface{} {
	switch databaseType() {
	case config.DATABASE_TYPE_SQLLITE:
		return t.UTC().Format("2006-01-02 15:04:05.000")
	case config.DATABASE_TYPE_MYSQL:
		return t.UTC().Format("2006-01-02 15:04:05.000000")
	}
	return t.UTC()
}

func formatDateInDatabaseNull(t sql.NullTime) interface{} {
	if !t.Valid {
		return nil
	}
	return formatDateInDatabase(t.Time)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// dateCompare returns a predicate comparing column against the bind variable at
// idx. SQLite goes through julianday() so TEXT timestamps compare as instants.
func dateCompare(column string, op string, idx int) string {
	if databaseType() == config.DATABASE_TYPE_SQLLITE {
		return fmt.Sprintf("julianday(%s) %s julianday(%s)", column, op, placeholder(idx))
	}
	return fmt.Sprintf("%s %s %s", column, op, placeholder(idx))
}

// onConflictDoNothing makes an INSERT a no-op when the unique key in
// conflictColumns already exists. MySQL has no DO NOTHING, so it assigns a
// column to itself, which reports zero affected rows.
func onConflictDoNothing(conflictColumns string, anyColumn string) string {
	if databaseType() == config.DATABASE_TYPE_MYSQL {
		return fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s = %s", anyColumn, anyColumn)
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", conflictColumns)
}

// onConflictUpdate turns an INSERT into an upsert overwriting updateColumns.
func onConflictUpdate(conflictColumns string, updateColumns ...string) string {
	sets := make([]string, len(updateColumns))
	if databaseType() == config.DATABASE_TYPE_MYSQL {
		for i, c := range updateColumns {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		}
		return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	for i, c := range updateColumns {
		sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", conflictColumns, strings.Join(sets, ", "))
}

func supportsReturning() bool {
	return databaseType() == config.DATABASE_TYPE_POSTGRES
}

// insertReturningID runs an INSERT and reports the generated id, using
// RETURNING where the dialect has it and LastInsertId otherwise.
func insertReturningID(ctx context.Context, db *sql.DB, query string, args ...interface{}) (int64, error) {
	if supportsReturning() {
		var id int64
		if err := db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// rowsAffected runs an UPDATE/DELETE and returns how many rows it touched.
func rowsAffected(ctx context.Context, db *sql.DB, query string, args ...interface{}) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// inStatuses renders a literal IN list; statuses are package constants, never input.
func inStatuses(statuses ...domain.ExecutionStatus) string {
	quoted := make([]string, len(statuses))
	for i, s := range statuses {
		quoted[i] = "'" + string(s) + "'"
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}
