package engine

import (
	"context"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/channels"
	"github.com/RealZimboGuy/courseflow/internal/domain"
)

// ActionRepo defines the FlowAction catalog persistence, matching repository.FlowActionRepository.
type ActionRepo interface {
	Save(ctx context.Context, a *domain.FlowAction) (int64, error)
	Update(ctx context.Context, a *domain.FlowAction) error
	FindByID(ctx context.Context, id int64) (*domain.FlowAction, error)
	FindByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID string, onlyActive bool) ([]*domain.FlowAction, error)
	FindByOrganization(ctx context.Context, organizationID string) ([]*domain.FlowAction, error)
	SetActive(ctx context.Context, id int64, active bool, now time.Time) (bool, error)
	SetActiveByOrganization(ctx context.Context, organizationID string, active bool, now time.Time) ([]int64, error)
	SetActiveByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID string, active bool, now time.Time) ([]int64, error)
	Delete(ctx context.Context, id int64) error
}

// ExecutionRepo defines the execution ledger, matching repository.ExecutionRepository.
type ExecutionRepo interface {
	InsertIfAbsent(ctx context.Context, e *domain.ExecutionRecord) (bool, error)
	FindByID(ctx context.Context, id int64) (*domain.ExecutionRecord, error)
	FindByActionAndSubject(ctx context.Context, actionID int64, subject domain.Subject) (*domain.ExecutionRecord, error)
	FindBySubject(ctx context.Context, subject domain.Subject) ([]*domain.ExecutionRecord, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.ExecutionRecord, error)
	Claim(ctx context.Context, id int64, workerName string, now time.Time) (bool, error)
	MarkRunning(ctx context.Context, id int64, workerName string, now time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, id int64, workerName string, now time.Time) (bool, error)
	Skip(ctx context.Context, id int64, workerName string, from domain.ExecutionStatus, reason string, now time.Time) (bool, error)
	Complete(ctx context.Context, id int64, workerName string, resultRef string, now time.Time) (bool, error)
	Fail(ctx context.Context, id int64, workerName string, attemptCount int, lastError string, now time.Time) (bool, error)
	Reschedule(ctx context.Context, id int64, workerName string, attemptCount int, next time.Time, lastError string, now time.Time) (bool, error)
	Schedule(ctx context.Context, id int64, scheduledFor time.Time, now time.Time) (bool, error)
	MoveSchedule(ctx context.Context, id int64, oldEpoch int, scheduledFor time.Time, idempotencyKey string, now time.Time) (bool, error)
	UpdateOrderByAction(ctx context.Context, actionID int64, executionOrder int, now time.Time) (int64, error)
	SkipNonTerminalByAction(ctx context.Context, actionID int64, reason string, now time.Time) ([]int64, error)
	SkipNonTerminalBySubject(ctx context.Context, subject domain.Subject, reason string, now time.Time) ([]int64, error)
	CancelNonTerminalByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID string, reason string, now time.Time) ([]int64, error)
	FindStaleClaims(ctx context.Context, before time.Time, limit int) ([]*domain.ExecutionRecord, error)
	ResetStaleClaim(ctx context.Context, e *domain.ExecutionRecord, now time.Time) (bool, error)
	FindPending(ctx context.Context, afterID int64, limit int) ([]*domain.ExecutionRecord, error)
	FindByAction(ctx context.Context, actionID int64, status domain.ExecutionStatus, limit int) ([]*domain.ExecutionRecord, error)
	CountByAction(ctx context.Context, actionID int64) (int, error)
	StatusSummary(ctx context.Context, actionID int64) (map[domain.ExecutionStatus]int, error)
}

// SubjectRepo defines subject snapshot persistence.
type SubjectRepo interface {
	Upsert(ctx context.Context, snap *domain.SubjectSnapshot) error
	Find(ctx context.Context, subject domain.Subject) (*domain.SubjectSnapshot, error)
	FindActiveByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID string) ([]*domain.SubjectSnapshot, error)
	SetStatus(ctx context.Context, subject domain.Subject, status domain.SubjectStatus, now time.Time) error
}

type OrganizationRepo interface {
	Find(ctx context.Context, id string) (*domain.Organization, error)
	SetTimezone(ctx context.Context, id string, timezone string, now time.Time) error
}

// EventRepo defines the audit trail persistence.
type EventRepo interface {
	Save(ctx context.Context, e *domain.ExecutionEvent) (int64, error)
	FindByRecordID(ctx context.Context, recordID int64) ([]domain.ExecutionEvent, error)
}

// WorkerRepo defines the worker registry persistence.
type WorkerRepo interface {
	Save(ctx context.Context, w *domain.Worker) (int64, error)
	UpdateLastActive(ctx context.Context, id int64, ts time.Time) error
	FindByLastActive(ctx context.Context, limit int) ([]*domain.Worker, error)
}

// Dispatcher performs the side effect for one record, matching channels.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, record *domain.ExecutionRecord, action *domain.FlowAction, subject *domain.SubjectSnapshot) channels.Outcome
}

// AlertSink receives records that ended in failed, matching events.Bus.
type AlertSink interface {
	PublishAlert(ctx context.Context, alert domain.FailureAlert) error
}

// Repositories groups the persistence the engine components share.
type Repositories struct {
	Actions       ActionRepo
	Executions    ExecutionRepo
	Subjects      SubjectRepo
	Organizations OrganizationRepo
	Events        EventRepo
	Workers       WorkerRepo
}
