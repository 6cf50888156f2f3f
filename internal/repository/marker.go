package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/RealZimboGuy/courseflow/pkg/courseflow/core"
)

// MarkerRepository is the SQL backed "already sent" store keyed by
// idempotency key. It is used when no Redis is configured.
type MarkerRepository struct {
	db    *sql.DB
	clock core.Clock
}

func NewMarkerRepository(db *sql.DB, clock core.Clock) *MarkerRepository {
	return &MarkerRepository{db: db, clock: clock}
}

// Seen reports whether key was marked and the result reference stored with it.
func (r *MarkerRepository) Seen(ctx context.Context, key string) (string, bool, error) {
	var ref sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT result_ref FROM dispatch_markers WHERE idempotency_key = `+placeholder(1), key).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return ref.String, true, nil
}

// Mark records key as done. Marking twice keeps the first reference.
func (r *MarkerRepository) Mark(ctx context.Context, key string, resultRef string) error {
	query := `INSERT INTO dispatch_markers (idempotency_key, result_ref, created) VALUES (` + placeholders(1, 3) + `)` +
		onConflictDoNothing("idempotency_key", "idempotency_key")
	_, err := r.db.ExecContext(ctx, query, key, nullString(resultRef), formatDateInDatabase(r.clock.Now()))
	return err
}
