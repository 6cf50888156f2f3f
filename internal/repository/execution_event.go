package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

// ExecutionEventRepository stores the append-only audit trail of a record.
type ExecutionEventRepository struct {
	db *sql.DB
}

func NewExecutionEventRepository(db *sql.DB) *ExecutionEventRepository {
	return &ExecutionEventRepository{db: db}
}

// Save inserts a new event and returns its ID.
func (r *ExecutionEventRepository) Save(ctx context.Context, e *domain.ExecutionEvent) (int64, error) {
	query := `
		INSERT INTO execution_events (execution_record_id, worker_id, attempt_count, type, text, date_time)
		VALUES (` + placeholders(1, 6) + `)`
	id, err := insertReturningID(ctx, r.db, query,
		e.ExecutionRecordID,
		e.WorkerID,
		e.AttemptCount,
		e.Type,
		e.Text,
		formatDateInDatabase(e.DateTime),
	)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to save execution event", "record_id", e.ExecutionRecordID, "type", e.Type, "error", err)
		return 0, err
	}
	e.ID = id
	return id, nil
}

// FindByRecordID returns a record's events, newest first.
func (r *ExecutionEventRepository) FindByRecordID(ctx context.Context, recordID int64) ([]domain.ExecutionEvent, error) {
	query := `
		SELECT id, execution_record_id, worker_id, attempt_count, type, text, date_time
		FROM execution_events
		WHERE execution_record_id = ` + placeholder(1) + `
		ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.ExecutionEvent
	for rows.Next() {
		var e domain.ExecutionEvent
		var text sql.NullString
		if err := rows.Scan(&e.ID, &e.ExecutionRecordID, &e.WorkerID, &e.AttemptCount, &e.Type, &text, &e.DateTime); err != nil {
			return nil, err
		}
		e.Text = text.String
		events = append(events, e)
	}
	return events, rows.Err()
}
