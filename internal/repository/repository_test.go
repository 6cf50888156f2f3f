package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/internal/testutil"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db         *sql.DB
	actions    *FlowActionRepository
	executions *ExecutionRepository
	subjects   *SubjectRepository
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewSQLiteDB(t)
	return &fixture{
		db:         db,
		actions:    NewFlowActionRepository(db),
		executions: NewExecutionRepository(db),
		subjects:   NewSubjectRepository(db),
	}
}

func (f *fixture) action(t *testing.T, ownerID string, order int) *domain.FlowAction {
	t.Helper()
	a := &domain.FlowAction{
		OrganizationID: "org-1",
		OwnerType:      domain.OwnerCourse,
		OwnerID:        ownerID,
		Title:          "action",
		ChannelType:    domain.ChannelEmail,
		RecipientRole:  domain.RoleLearner,
		Destination:    "tpl",
		Trigger:        domain.TriggerSpec{ReferenceEvent: domain.ReferenceEnrollment, Direction: domain.DirectionOn},
		ExecutionOrder: order,
		IsActive:       true,
		MaxAttempts:    3,
		Created:        t0,
		Modified:       t0,
	}
	_, err := f.actions.Save(context.Background(), a)
	require.NoError(t, err)
	return a
}

func (f *fixture) record(t *testing.T, a *domain.FlowAction, subjectID string, status domain.ExecutionStatus, scheduledFor time.Time) *domain.ExecutionRecord {
	t.Helper()
	subject := domain.Subject{Type: domain.SubjectEnrollment, ID: subjectID}
	e := &domain.ExecutionRecord{
		FlowActionID:   a.ID,
		OrganizationID: a.OrganizationID,
		OwnerType:      a.OwnerType,
		OwnerID:        a.OwnerID,
		ExecutionOrder: a.ExecutionOrder,
		Subject:        subject,
		Status:         status,
		IdempotencyKey: domain.IdempotencyKey(a.ID, subject, 0),
		Created:        t0,
		Modified:       t0,
	}
	if !scheduledFor.IsZero() {
		e.ScheduledFor = sql.NullTime{Time: scheduledFor, Valid: true}
	}
	inserted, err := f.executions.InsertIfAbsent(context.Background(), e)
	require.NoError(t, err)
	require.True(t, inserted)
	return e
}
