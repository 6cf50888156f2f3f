package engine

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/courseflow/internal/channels"
	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/internal/events"
	"github.com/RealZimboGuy/courseflow/internal/repository"
	"github.com/RealZimboGuy/courseflow/internal/testutil"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// fakeDispatcher records every dispatch and answers with outcome.
type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []*domain.ExecutionRecord
	orders  []int
	outcome func(rec *domain.ExecutionRecord, action *domain.FlowAction) channels.Outcome
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, rec *domain.ExecutionRecord, action *domain.FlowAction, subject *domain.SubjectSnapshot) channels.Outcome {
	d.mu.Lock()
	cp := *rec
	d.calls = append(d.calls, &cp)
	d.orders = append(d.orders, action.ExecutionOrder)
	fn := d.outcome
	d.mu.Unlock()
	if fn == nil {
		return channels.Done("ok")
	}
	return fn(rec, action)
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func (d *fakeDispatcher) dispatchedOrders() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.orders...)
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []domain.FailureAlert
}

func (a *alertRecorder) PublishAlert(ctx context.Context, alert domain.FailureAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return nil
}

type harness struct {
	db         *sql.DB
	clock      *testutil.FakeClock
	repos      Repositories
	dispatcher *fakeDispatcher
	alerts     *alertRecorder
	retry      *RetryManager
	planner    *Planner
	control    *Control
	scheduler  *Scheduler
}

func newHarness(t *testing.T, cfg SchedulerConfig) *harness {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	h := &harness{
		db:    db,
		clock: testutil.NewFakeClock(t0),
		repos: Repositories{
			Actions:       repository.NewFlowActionRepository(db),
			Executions:    repository.NewExecutionRepository(db),
			Subjects:      repository.NewSubjectRepository(db),
			Organizations: repository.NewOrganizationRepository(db),
			Events:        repository.NewExecutionEventRepository(db),
			Workers:       repository.NewWorkerRepository(db),
		},
		dispatcher: &fakeDispatcher{},
		alerts:     &alertRecorder{},
	}
	h.retry = NewRetryManager(h.repos.Executions, h.repos.Events, NewAlerter(h.alerts, nil), Backoff{Base: time.Minute, Max: time.Hour}, h.clock)
	h.planner = NewPlanner(h.repos, h.clock, time.UTC, nil)
	h.control = NewControl(h.repos, h.planner, h.clock, nil)
	if cfg.WorkerName == "" {
		cfg.WorkerName = "test"
	}
	h.scheduler = h.newScheduler(cfg)
	return h
}

func (h *harness) newScheduler(cfg SchedulerConfig) *Scheduler {
	return NewScheduler(h.repos, h.dispatcher, h.retry, h.clock, cfg, nil)
}

func (h *harness) createAction(t *testing.T, ownerID string, order int, mutate ...func(a *domain.FlowAction)) *domain.FlowAction {
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
	}
	for _, m := range mutate {
		m(a)
	}
	created, err := h.control.CreateAction(context.Background(), a)
	require.NoError(t, err)
	return created
}

func (h *harness) enroll(t *testing.T, ownerID, subjectID string, at time.Time) domain.Subject {
	t.Helper()
	subject := domain.Subject{Type: domain.SubjectEnrollment, ID: subjectID}
	require.NoError(t, h.planner.HandleEvent(context.Background(), events.LifecycleEvent{
		Kind:           events.KindEnrolled,
		OrganizationID: "org-1",
		OwnerType:      domain.OwnerCourse,
		OwnerID:        ownerID,
		Subject:        &subject,
		At:             &at,
		Attributes:     map[string]string{"learner_email": subjectID + "@example.com"},
	}))
	return subject
}

func (h *harness) record(t *testing.T, actionID int64, subject domain.Subject) *domain.ExecutionRecord {
	t.Helper()
	rec, err := h.repos.Executions.FindByActionAndSubject(context.Background(), actionID, subject)
	require.NoError(t, err)
	return rec
}

// drain runs the scheduler until nothing is due at the current fake time.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 100; i++ {
		n, err := h.scheduler.RunOnce(context.Background())
		require.NoError(t, err)
		if n == 0 {
			return
		}
	}
	t.Fatal("scheduler did not settle")
}

func (h *harness) eventTypes(t *testing.T, recordID int64) []string {
	t.Helper()
	evs, err := h.repos.Events.FindByRecordID(context.Background(), recordID)
	require.NoError(t, err)
	types := make([]string, 0, len(evs))
	for i := len(evs) - 1; i >= 0; i-- {
		types = append(types, evs[i].Type)
	}
	return types
}
