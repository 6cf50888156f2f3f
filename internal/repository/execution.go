package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

const executionColumns = `id, flow_action_id, organization_id, owner_type, owner_id, execution_order, subject_type, subject_id,
	status, scheduled_for, claimed_by, claimed_at, attempt_count, last_error, executed_at, epoch, idempotency_key, result_ref, created, modified`

// ExecutionRepository is the execution ledger. Every state change is a
// conditional UPDATE on the expected source status; callers learn whether
// they won from the boolean result.
type ExecutionRepository struct {
	db *sql.DB
}

func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func scanExecution(s interface{ Scan(dest ...any) error }) (*domain.ExecutionRecord, error) {
	var e domain.ExecutionRecord
	if err := s.Scan(
		&e.ID,
		&e.FlowActionID,
		&e.OrganizationID,
		&e.OwnerType,
		&e.OwnerID,
		&e.ExecutionOrder,
		&e.Subject.Type,
		&e.Subject.ID,
		&e.Status,
		&e.ScheduledFor,
		&e.ClaimedBy,
		&e.ClaimedAt,
		&e.AttemptCount,
		&e.LastError,
		&e.ExecutedAt,
		&e.Epoch,
		&e.IdempotencyKey,
		&e.ResultRef,
		&e.Created,
		&e.Modified,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ExecutionRepository) query(ctx context.Context, query string, args ...interface{}) ([]*domain.ExecutionRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.ExecutionRecord
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, e)
	}
	return records, rows.Err()
}

// InsertIfAbsent creates the record unless one already exists for the same
// (action, subject). It reports whether a row was inserted.
func (r *ExecutionRepository) InsertIfAbsent(ctx context.Context, e *domain.ExecutionRecord) (bool, error) {
	query := `
		INSERT INTO execution_records (
			flow_action_id, organization_id, owner_type, owner_id, execution_order, subject_type, subject_id,
			status, scheduled_for, attempt_count, epoch, idempotency_key, created, modified
		) VALUES (` + placeholders(1, 14) + `)` +
		onConflictDoNothing("flow_action_id, subject_type, subject_id", "id")
	args := []interface{}{
		e.FlowActionID,
		e.OrganizationID,
		e.OwnerType,
		e.OwnerID,
		e.ExecutionOrder,
		e.Subject.Type,
		e.Subject.ID,
		e.Status,
		formatDateInDatabaseNull(e.ScheduledFor),
		e.AttemptCount,
		e.Epoch,
		e.IdempotencyKey,
		formatDateInDatabase(e.Created),
		formatDateInDatabase(e.Modified),
	}
	if supportsReturning() {
		err := r.db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&e.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return err == nil, err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil || n != 1 {
		return false, err
	}
	e.ID, err = res.LastInsertId()
	return err == nil, err
}

func (r *ExecutionRepository) FindByID(ctx context.Context, id int64) (*domain.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM execution_records WHERE id = ` + placeholder(1)
	e, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (r *ExecutionRepository) FindByActionAndSubject(ctx context.Context, actionID int64, subject domain.Subject) (*domain.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM execution_records
		WHERE flow_action_id = ` + placeholder(1) + ` AND subject_type = ` + placeholder(2) + ` AND subject_id = ` + placeholder(3)
	e, err := scanExecution(r.db.QueryRowContext(ctx, query, actionID, subject.Type, subject.ID))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// FindBySubject returns a subject's records in execution order.
func (r *ExecutionRepository) FindBySubject(ctx context.Context, subject domain.Subject) ([]*domain.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM execution_records
		WHERE subject_type = ` + placeholder(1) + ` AND subject_id = ` + placeholder(2) + `
		ORDER BY execution_order, flow_action_id`
	return r.query(ctx, query, subject.Type, subject.ID)
}

// FindDue returns unclaimed scheduled records whose time has come, grouped by
// subject and in execution order within a subject. A record is held back while
// a lower ordered sibling for the same subject is in flight or waiting on a
// retry, so one subject's actions never overtake each other.
func (r *ExecutionRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.ExecutionRecord, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM execution_records r
		WHERE r.status = '` + string(domain.StatusScheduled) + `'
		  AND r.claimed_by IS NULL
		  AND ` + dateCompare("r.scheduled_for", "<=", 1) + `
		  AND NOT EXISTS (
			SELECT 1 FROM execution_records s
			WHERE s.owner_type = r.owner_type AND s.owner_id = r.owner_id
			  AND s.subject_type = r.subject_type AND s.subject_id = r.subject_id
			  AND (s.execution_order < r.execution_order
			       OR (s.execution_order = r.execution_order AND s.flow_action_id < r.flow_action_id))
			  AND (s.status IN ` + inStatuses(domain.StatusClaimed, domain.StatusRunning) + `
			       OR (s.status = '` + string(domain.StatusScheduled) + `' AND s.attempt_count > 0))
		  )
		ORDER BY r.owner_type, r.owner_id, r.subject_type, r.subject_id, r.execution_order, r.flow_action_id, r.scheduled_for
		LIMIT ` + placeholder(2)
	return r.query(ctx, query, formatDateInDatabase(now), limit)
}

// Claim is the only mutual exclusion point between workers.
func (r *ExecutionRepository) Claim(ctx context.Context, id int64, workerName string, now time.Time) (bool, error) {
	query := `
		UPDATE execution_records
		SET status = '` + string(domain.StatusClaimed) + `', claimed_by = ` + placeholder(1) + `, claimed_at = ` + placeholder(2) + `, modified = ` + placeholder(3) + `
		WHERE id = ` + placeholder(4) + ` AND status = '` + string(domain.StatusScheduled) + `' AND claimed_by IS NULL`
	n, err := rowsAffected(ctx, r.db, query, workerName, formatDateInDatabase(now), formatDateInDatabase(now), id)
	return n == 1, err
}

func (r *ExecutionRepository) MarkRunning(ctx context.Context, id int64, workerName string, now time.Time) (bool, error) {
	return r.transition(ctx, id, workerName, domain.StatusClaimed, domain.StatusRunning, now, "")
}

// ReleaseClaim hands a claimed but not yet running record back to the ledger.
func (r *ExecutionRepository) ReleaseClaim(ctx context.Context, id int64, workerName string, now time.Time) (bool, error) {
	query := `
		UPDATE execution_records
		SET status = '` + string(domain.StatusScheduled) + `', claimed_by = NULL, claimed_at = NULL, modified = ` + placeholder(1) + `
		WHERE id = ` + placeholder(2) + ` AND status = '` + string(domain.StatusClaimed) + `' AND claimed_by = ` + placeholder(3)
	n, err := rowsAffected(ctx, r.db, query, formatDateInDatabase(now), id, workerName)
	return n == 1, err
}

// Skip moves a record held by workerName to skipped with reason.
func (r *ExecutionRepository) Skip(ctx context.Context, id int64, workerName string, from domain.ExecutionStatus, reason string, now time.Time) (bool, error) {
	return r.transition(ctx, id, workerName, from, domain.StatusSkipped, now, reason)
}

func (r *ExecutionRepository) transition(ctx context.Context, id int64, workerName string, from, to domain.ExecutionStatus, now time.Time, reason string) (bool, error) {
	if err := domain.CheckTransition(from, to); err != nil {
		return false, err
	}
	query := `
		UPDATE execution_records
		SET status = ` + placeholder(1) + `, last_error = COALESCE(` + placeholder(2) + `, last_error), modified = ` + placeholder(3) + `
		WHERE id = ` + placeholder(4) + ` AND status = ` + placeholder(5) + ` AND claimed_by = ` + placeholder(6)
	n, err := rowsAffected(ctx, r.db, query, to, nullString(reason), formatDateInDatabase(now), id, from, workerName)
	return n == 1, err
}

func (r *ExecutionRepository) Complete(ctx context.Context, id int64, workerName string, resultRef string, now time.Time) (bool, error) {
	query := `
		UPDATE execution_records
		SET status = '` + string(domain.StatusCompleted) + `', executed_at = ` + placeholder(1) + `, result_ref = ` + placeholder(2) + `, modified = ` + placeholder(3) + `
		WHERE id = ` + placeholder(4) + ` AND status = '` + string(domain.StatusRunning) + `' AND claimed_by = ` + placeholder(5)
	n, err := rowsAffected(ctx, r.db, query, formatDateInDatabase(now), nullString(resultRef), formatDateInDatabase(now), id, workerName)
	return n == 1, err
}

// Fail is terminal: no further attempts will be made.
func (r *ExecutionRepository) Fail(ctx context.Context, id int64, workerName string, attemptCount int, lastError string, now time.Time) (bool, error) {
	query := `
		UPDATE execution_records
		SET status = '` + string(domain.StatusFailed) + `', attempt_count = ` + placeholder(1) + `, last_error = ` + placeholder(2) + `,
			executed_at = ` + placeholder(3) + `, modified = ` + placeholder(4) + `
		WHERE id = ` + placeholder(5) + ` AND status = '` + string(domain.StatusRunning) + `' AND claimed_by = ` + placeholder(6)
	n, err := rowsAffected(ctx, r.db, query, attemptCount, lastError, formatDateInDatabase(now), formatDateInDatabase(now), id, workerName)
	return n == 1, err
}

// Reschedule puts a running record back to scheduled for another attempt at next.
func (r *ExecutionRepository) Reschedule(ctx context.Context, id int64, workerName string, attemptCount int, next time.Time, lastError string, now time.Time) (bool, error) {
	query := `
		UPDATE execution_records
		SET status = '` + string(domain.StatusScheduled) + `', attempt_count = ` + placeholder(1) + `, last_error = ` + placeholder(2) + `,
			scheduled_for = ` + placeholder(3) + `, claimed_by = NULL, claimed_at = NULL, modified = ` + placeholder(4) + `
		WHERE id = ` + placeholder(5) + ` AND status = '` + string(domain.StatusRunning) + `' AND claimed_by = ` + placeholder(6)
	n, err := rowsAffected(ctx, r.db, query, attemptCount, lastError, formatDateInDatabase(next), formatDateInDatabase(now), id, workerName)
	return n == 1, err
}

// Schedule resolves a pending record.
func (r *ExecutionRepository) Schedule(ctx context.Context, id int64, scheduledFor time.Time, now time.Time) (bool, error) {
	query := `
		UPDATE execution_records
		SET status = '` + string(domain.StatusScheduled) + `', scheduled_for = ` + placeholder(1) + `, modified = ` + placeholder(2) + `
		WHERE id = ` + placeholder(3) + ` AND status = '` + string(domain.StatusPending) + `'`
	n, err := rowsAffected(ctx, r.db, query, formatDateInDatabase(scheduledFor), formatDateInDatabase(now), id)
	return n == 1, err
}

// MoveSchedule re-times a scheduled, unclaimed, never attempted record and
// starts a new epoch, which gives the occurrence a new idempotency key. The
// old epoch guards against concurrent moves.
func (r *ExecutionRepository) MoveSchedule(ctx context.Context, id int64, oldEpoch int, scheduledFor time.Time, idempotencyKey string, now time.Time) (bool, error) {
	query := `
		UPDATE execution_records
		SET scheduled_for = ` + placeholder(1) + `, epoch = ` + placeholder(2) + `, idempotency_key = ` + placeholder(3) + `, modified = ` + placeholder(4) + `
		WHERE id = ` + placeholder(5) + ` AND epoch = ` + placeholder(6) + ` AND status = '` + string(domain.StatusScheduled) + `'
		  AND claimed_by IS NULL AND attempt_count = 0`
	n, err := rowsAffected(ctx, r.db, query, formatDateInDatabase(scheduledFor), oldEpoch+1, idempotencyKey, formatDateInDatabase(now), id, oldEpoch)
	return n == 1, err
}

// UpdateOrderByAction keeps the denormalized execution order in step with the action.
func (r *ExecutionRepository) UpdateOrderByAction(ctx context.Context, actionID int64, executionOrder int, now time.Time) (int64, error) {
	query := `UPDATE execution_records SET execution_order = ` + placeholder(1) + `, modified = ` + placeholder(2) + `
		WHERE flow_action_id = ` + placeholder(3) + ` AND status NOT IN ` + inStatuses(domain.StatusCompleted, domain.StatusFailed, domain.StatusSkipped, domain.StatusCancelled)
	return rowsAffected(ctx, r.db, query, executionOrder, formatDateInDatabase(now), actionID)
}

// Records that have not started are stopped outright. A running record is left
// to its worker, which re-checks the action and subject before dispatching.
var stoppable = []domain.ExecutionStatus{domain.StatusPending, domain.StatusScheduled, domain.StatusClaimed}

func (r *ExecutionRepository) stopWhere(ctx context.Context, to domain.ExecutionStatus, reason string, now time.Time, where string, args ...interface{}) ([]int64, error) {
	selectQuery := `SELECT id FROM execution_records WHERE ` + where + ` AND status IN ` + inStatuses(stoppable...)
	rows, err := r.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var stopped []int64
	for _, id := range ids {
		query := `UPDATE execution_records SET status = ` + placeholder(1) + `, last_error = ` + placeholder(2) + `, modified = ` + placeholder(3) + `
			WHERE id = ` + placeholder(4) + ` AND status IN ` + inStatuses(stoppable...)
		n, err := rowsAffected(ctx, r.db, query, to, nullString(reason), formatDateInDatabase(now), id)
		if err != nil {
			return stopped, err
		}
		if n == 1 {
			stopped = append(stopped, id)
		}
	}
	return stopped, nil
}

// SkipNonTerminalByAction skips every not yet started record of an action and
// returns the ids it moved.
func (r *ExecutionRepository) SkipNonTerminalByAction(ctx context.Context, actionID int64, reason string, now time.Time) ([]int64, error) {
	return r.stopWhere(ctx, domain.StatusSkipped, reason, now, `flow_action_id = `+placeholder(1), actionID)
}

func (r *ExecutionRepository) SkipNonTerminalBySubject(ctx context.Context, subject domain.Subject, reason string, now time.Time) ([]int64, error) {
	return r.stopWhere(ctx, domain.StatusSkipped, reason, now,
		`subject_type = `+placeholder(1)+` AND subject_id = `+placeholder(2), subject.Type, subject.ID)
}

func (r *ExecutionRepository) CancelNonTerminalByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID string, reason string, now time.Time) ([]int64, error) {
	return r.stopWhere(ctx, domain.StatusCancelled, reason, now,
		`owner_type = `+placeholder(1)+` AND owner_id = `+placeholder(2), ownerType, ownerID)
}

// FindStaleClaims returns claimed or running records whose claim is older than
// before; their worker is presumed dead.
func (r *ExecutionRepository) FindStaleClaims(ctx context.Context, before time.Time, limit int) ([]*domain.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM execution_records
		WHERE status IN ` + inStatuses(domain.StatusClaimed, domain.StatusRunning) + `
		  AND ` + dateCompare("claimed_at", "<", 1) + `
		ORDER BY claimed_at
		LIMIT ` + placeholder(2)
	return r.query(ctx, query, formatDateInDatabase(before), limit)
}

// ResetStaleClaim returns a stale record to scheduled. It only matches while
// the same worker still holds the same claim.
func (r *ExecutionRepository) ResetStaleClaim(ctx context.Context, e *domain.ExecutionRecord, now time.Time) (bool, error) {
	if !e.ClaimedBy.Valid || !e.ClaimedAt.Valid {
		return false, nil
	}
	query := `
		UPDATE execution_records
		SET status = '` + string(domain.StatusScheduled) + `', claimed_by = NULL, claimed_at = NULL, modified = ` + placeholder(1) + `
		WHERE id = ` + placeholder(2) + ` AND status = ` + placeholder(3) + ` AND claimed_by = ` + placeholder(4) + `
		  AND ` + dateCompare("claimed_at", "=", 5)
	n, err := rowsAffected(ctx, r.db, query, formatDateInDatabase(now), e.ID, e.Status, e.ClaimedBy.String, formatDateInDatabase(e.ClaimedAt.Time))
	return n == 1, err
}

// FindPending pages through unresolved records by id.
func (r *ExecutionRepository) FindPending(ctx context.Context, afterID int64, limit int) ([]*domain.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM execution_records
		WHERE status = '` + string(domain.StatusPending) + `' AND id > ` + placeholder(1) + `
		ORDER BY id
		LIMIT ` + placeholder(2)
	return r.query(ctx, query, afterID, limit)
}

// FindByAction returns an action's records, optionally filtered by status.
func (r *ExecutionRepository) FindByAction(ctx context.Context, actionID int64, status domain.ExecutionStatus, limit int) ([]*domain.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM execution_records WHERE flow_action_id = ` + placeholder(1)
	args := []interface{}{actionID}
	if status != "" {
		query += ` AND status = ` + placeholder(2)
		args = append(args, status)
	}
	query += ` ORDER BY modified DESC, id DESC LIMIT ` + placeholder(len(args)+1)
	args = append(args, limit)
	return r.query(ctx, query, args...)
}

func (r *ExecutionRepository) CountByAction(ctx context.Context, actionID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM execution_records WHERE flow_action_id = `+placeholder(1), actionID).Scan(&n)
	return n, err
}

// StatusSummary counts an action's records per status. Every status is present.
func (r *ExecutionRepository) StatusSummary(ctx context.Context, actionID int64) (map[domain.ExecutionStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM execution_records WHERE flow_action_id = ` + placeholder(1) + ` GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := make(map[domain.ExecutionStatus]int, len(domain.AllStatuses))
	for _, s := range domain.AllStatuses {
		summary[s] = 0
	}
	for rows.Next() {
		var status domain.ExecutionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary[status] = count
	}
	return summary, rows.Err()
}
