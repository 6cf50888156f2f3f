package controllers

import (
	"context"

	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/internal/events"
)

// ActionService is the catalog side of engine.Control.
type ActionService interface {
	CreateAction(ctx context.Context, a *domain.FlowAction) (*domain.FlowAction, error)
	UpdateAction(ctx context.Context, a *domain.FlowAction) (*domain.FlowAction, error)
	DeleteAction(ctx context.Context, id int64) (bool, error)
	GetAction(ctx context.Context, id int64) (*domain.FlowAction, error)
	ListActions(ctx context.Context, ownerType domain.OwnerType, ownerID string) ([]*domain.FlowAction, error)
	DeactivateAction(ctx context.Context, id int64) ([]int64, error)
	ActivateAction(ctx context.Context, id int64) error
	Summary(ctx context.Context, actionID int64) (map[domain.ExecutionStatus]int, error)
	Failures(ctx context.Context, actionID int64, limit int) ([]*domain.ExecutionRecord, error)
}

// ExecutionService is the read side of the ledger.
type ExecutionService interface {
	GetExecution(ctx context.Context, id int64) (*domain.ExecutionRecord, error)
	ExecutionEvents(ctx context.Context, recordID int64) ([]domain.ExecutionEvent, error)
	SubjectExecutions(ctx context.Context, subject domain.Subject) ([]*domain.ExecutionRecord, error)
}

type OrganizationService interface {
	GetOrganization(ctx context.Context, organizationID string) (*domain.Organization, error)
	PauseOrganization(ctx context.Context, organizationID string) ([]int64, error)
	ResumeOrganization(ctx context.Context, organizationID string) ([]int64, error)
	SetTimezone(ctx context.Context, organizationID string, timezone string) error
}

type WorkerService interface {
	Workers(ctx context.Context, limit int) ([]*domain.Worker, error)
}

// EventPublisher accepts lifecycle events, matching events.Bus.
type EventPublisher interface {
	PublishLifecycle(ctx context.Context, ev events.LifecycleEvent) error
}
