package controllers

import (
	"context"

	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/internal/events"
)

type MockActionService struct {
	CreateActionFunc     func(ctx context.Context, a *domain.FlowAction) (*domain.FlowAction, error)
	UpdateActionFunc     func(ctx context.Context, a *domain.FlowAction) (*domain.FlowAction, error)
	DeleteActionFunc     func(ctx context.Context, id int64) (bool, error)
	GetActionFunc        func(ctx context.Context, id int64) (*domain.FlowAction, error)
	ListActionsFunc      func(ctx context.Context, ownerType domain.OwnerType, ownerID string) ([]*domain.FlowAction, error)
	DeactivateActionFunc func(ctx context.Context, id int64) ([]int64, error)
	ActivateActionFunc   func(ctx context.Context, id int64) error
	SummaryFunc          func(ctx context.Context, actionID int64) (map[domain.ExecutionStatus]int, error)
	FailuresFunc         func(ctx context.Context, actionID int64, limit int) ([]*domain.ExecutionRecord, error)
}

func (m *MockActionService) CreateAction(ctx context.Context, a *domain.FlowAction) (*domain.FlowAction, error) {
	return m.CreateActionFunc(ctx, a)
}
func (m *MockActionService) UpdateAction(ctx context.Context, a *domain.FlowAction) (*domain.FlowAction, error) {
	return m.UpdateActionFunc(ctx, a)
}
func (m *MockActionService) DeleteAction(ctx context.Context, id int64) (bool, error) {
	return m.DeleteActionFunc(ctx, id)
}
func (m *MockActionService) GetAction(ctx context.Context, id int64) (*domain.FlowAction, error) {
	return m.GetActionFunc(ctx, id)
}
func (m *MockActionService) ListActions(ctx context.Context, ownerType domain.OwnerType, ownerID string) ([]*domain.FlowAction, error) {
	return m.ListActionsFunc(ctx, ownerType, ownerID)
}
func (m *MockActionService) DeactivateAction(ctx context.Context, id int64) ([]int64, error) {
	return m.DeactivateActionFunc(ctx, id)
}
func (m *MockActionService) ActivateAction(ctx context.Context, id int64) error {
	return m.ActivateActionFunc(ctx, id)
}
func (m *MockActionService) Summary(ctx context.Context, actionID int64) (map[domain.ExecutionStatus]int, error) {
	return m.SummaryFunc(ctx, actionID)
}
func (m *MockActionService) Failures(ctx context.Context, actionID int64, limit int) ([]*domain.ExecutionRecord, error) {
	return m.FailuresFunc(ctx, actionID, limit)
}

type MockExecutionService struct {
	GetExecutionFunc      func(ctx context.Context, id int64) (*domain.ExecutionRecord, error)
	ExecutionEventsFunc   func(ctx context.Context, recordID int64) ([]domain.ExecutionEvent, error)
	SubjectExecutionsFunc func(ctx context.Context, subject domain.Subject) ([]*domain.ExecutionRecord, error)
}

func (m *MockExecutionService) GetExecution(ctx context.Context, id int64) (*domain.ExecutionRecord, error) {
	return m.GetExecutionFunc(ctx, id)
}
func (m *MockExecutionService) ExecutionEvents(ctx context.Context, recordID int64) ([]domain.ExecutionEvent, error) {
	return m.ExecutionEventsFunc(ctx, recordID)
}
func (m *MockExecutionService) SubjectExecutions(ctx context.Context, subject domain.Subject) ([]*domain.ExecutionRecord, error) {
	return m.SubjectExecutionsFunc(ctx, subject)
}

type MockOrganizationService struct {
	GetOrganizationFunc    func(ctx context.Context, organizationID string) (*domain.Organization, error)
	PauseOrganizationFunc  func(ctx context.Context, organizationID string) ([]int64, error)
	ResumeOrganizationFunc func(ctx context.Context, organizationID string) ([]int64, error)
	SetTimezoneFunc        func(ctx context.Context, organizationID string, timezone string) error
}

func (m *MockOrganizationService) GetOrganization(ctx context.Context, organizationID string) (*domain.Organization, error) {
	return m.GetOrganizationFunc(ctx, organizationID)
}
func (m *MockOrganizationService) PauseOrganization(ctx context.Context, organizationID string) ([]int64, error) {
	return m.PauseOrganizationFunc(ctx, organizationID)
}
func (m *MockOrganizationService) ResumeOrganization(ctx context.Context, organizationID string) ([]int64, error) {
	return m.ResumeOrganizationFunc(ctx, organizationID)
}
func (m *MockOrganizationService) SetTimezone(ctx context.Context, organizationID string, timezone string) error {
	return m.SetTimezoneFunc(ctx, organizationID, timezone)
}

type MockWorkerService struct {
	WorkersFunc func(ctx context.Context, limit int) ([]*domain.Worker, error)
}

func (m *MockWorkerService) Workers(ctx context.Context, limit int) ([]*domain.Worker, error) {
	return m.WorkersFunc(ctx, limit)
}

type MockPublisher struct {
	PublishLifecycleFunc func(ctx context.Context, ev events.LifecycleEvent) error
}

func (m *MockPublisher) PublishLifecycle(ctx context.Context, ev events.LifecycleEvent) error {
	return m.PublishLifecycleFunc(ctx, ev)
}
