package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/internal/events"
)

func TestPlanner_OffsetTrigger(t *testing.T) {
	h := newHarness(t, SchedulerConfig{})
	a := h.createAction(t, "course-1", 1, func(a *domain.FlowAction) {
		a.Trigger = domain.TriggerSpec{ReferenceEvent: domain.ReferenceEnrollment, Direction: domain.DirectionAfter, DayOffset: 3,
			TimeOfDay: &domain.TimeOfDay{Hour: 14, Minute: 30}}
	})
	subject := h.enroll(t, "course-1", "enr-1", t0)

	rec := h.record(t, a.ID, subject)
	assert.Equal(t, domain.StatusScheduled, rec.Status)
	assert.Equal(t, time.Date(2025, 3, 13, 14, 30, 0, 0, time.UTC), rec.ScheduledFor.Time)
	assert.Equal(t, domain.IdempotencyKey(a.ID, subject, 0), rec.IdempotencyKey)
	assert.Equal(t, []string{domain.EventScheduled}, h.eventTypes(t, rec.ID))

	h.drain(t)
	assert.Zero(t, h.dispatcher.count(), "not due yet")
	h.clock.Set(time.Date(2025, 3, 13, 14, 30, 0, 0, time.UTC))
	h.drain(t)
	assert.Equal(t, 1, h.dispatcher.count())
}

func TestPlanner_UnresolvedStaysPending(t *testing.T) {
	h := newHarness(t, SchedulerConfig{})
	a := h.createAction(t, "course-1", 1, func(a *domain.FlowAction) {
		a.Trigger = domain.TriggerSpec{ReferenceEvent: domain.ReferenceCompletion, Direction: domain.DirectionAfter, DayOffset: 1}
	})
	subject := h.enroll(t, "course-1", "enr-1", t0.Add(-time.Hour))

	rec := h.record(t, a.ID, subject)
	assert.Equal(t, domain.StatusPending, rec.Status)
	assert.False(t, rec.ScheduledFor.Valid)

	n, err := h.planner.ResolvePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	h.drain(t)
	assert.Zero(t, h.dispatcher.count())

	// a second enrollment event must not duplicate the record
	h.enroll(t, "course-1", "enr-1", t0.Add(-time.Hour))
	all, err := h.repos.Executions.FindBySubject(context.Background(), subject)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	completed := t0.Add(-48 * time.Hour)
	require.NoError(t, h.planner.HandleEvent(context.Background(), events.LifecycleEvent{
		Kind: events.KindCompleted, OrganizationID: "org-1", OwnerType: domain.OwnerCourse, OwnerID: "course-1",
		Subject: &subject, At: &completed,
	}))
	rec = h.record(t, a.ID, subject)
	assert.Equal(t, domain.StatusScheduled, rec.Status)
	assert.Equal(t, completed.Add(24*time.Hour), rec.ScheduledFor.Time)
}

func TestPlanner_ResolvePendingSweep(t *testing.T) {
	h := newHarness(t, SchedulerConfig{})
	a := h.createAction(t, "course-1", 1, func(a *domain.FlowAction) {
		a.Trigger = domain.TriggerSpec{ReferenceEvent: domain.ReferenceCustom, CustomKey: "exam", Direction: domain.DirectionBefore, DayOffset: 2}
	})
	subject := h.enroll(t, "course-1", "enr-1", t0)
	assert.Equal(t, domain.StatusPending, h.record(t, a.ID, subject).Status)

	// the date arrives out of band, straight into the snapshot
	snap, err := h.repos.Subjects.Find(context.Background(), subject)
	require.NoError(t, err)
	snap.CustomDates = map[string]time.Time{"exam": t0.Add(10 * 24 * time.Hour)}
	require.NoError(t, h.repos.Subjects.Upsert(context.Background(), snap))

	woken := 0
	h.planner.OnDue(func() { woken++ })
	n, err := h.planner.ResolvePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, woken)
	rec := h.record(t, a.ID, subject)
	assert.Equal(t, domain.StatusScheduled, rec.Status)
	assert.Equal(t, t0.Add(8*24*time.Hour), rec.ScheduledFor.Time)
}

func TestPlanner_MovesScheduledRecordWithNewEpoch(t *testing.T) {
	h := newHarness(t, SchedulerConfig{})
	a := h.createAction(t, "session-1", 1, func(a *domain.FlowAction) {
		a.OwnerType = domain.OwnerSession
		a.Trigger = domain.TriggerSpec{ReferenceEvent: domain.ReferenceStart, Direction: domain.DirectionBefore, DayOffset: 1}
	})
	subject := domain.Subject{Type: domain.SubjectSession, ID: "session-1"}
	schedule := func(start time.Time) {
		require.NoError(t, h.planner.HandleEvent(context.Background(), events.LifecycleEvent{
			Kind: events.KindSessionScheduled, OrganizationID: "org-1", OwnerType: domain.OwnerSession, OwnerID: "session-1",
			Subject: &subject, SessionStart: &start,
		}))
	}

	schedule(t0.Add(5 * 24 * time.Hour))
	rec := h.record(t, a.ID, subject)
	assert.Equal(t, t0.Add(4*24*time.Hour), rec.ScheduledFor.Time)
	firstKey := rec.IdempotencyKey

	schedule(t0.Add(7 * 24 * time.Hour))
	rec = h.record(t, a.ID, subject)
	assert.Equal(t, t0.Add(6*24*time.Hour), rec.ScheduledFor.Time)
	assert.Equal(t, 1, rec.Epoch)
	assert.NotEqual(t, firstKey, rec.IdempotencyKey)
	assert.Equal(t, domain.IdempotencyKey(a.ID, subject, 1), rec.IdempotencyKey)

	schedule(t0.Add(7 * 24 * time.Hour))
	assert.Equal(t, 1, h.record(t, a.ID, subject).Epoch, "same time does not bump the epoch")
	assert.Contains(t, h.eventTypes(t, rec.ID), domain.EventMoved)
}

func TestPlanner_OrganizationTimezone(t *testing.T) {
	h := newHarness(t, SchedulerConfig{})
	require.NoError(t, h.control.SetTimezone(context.Background(), "org-1", "America/New_York"))
	a := h.createAction(t, "course-1", 1, func(a *domain.FlowAction) {
		a.Trigger = domain.TriggerSpec{ReferenceEvent: domain.ReferenceEnrollment, Direction: domain.DirectionBefore, DayOffset: 3}
	})
	// 10:00 local on 2025-03-11, the first week of daylight saving time
	subject := h.enroll(t, "course-1", "enr-1", time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC))

	rec := h.record(t, a.ID, subject)
	assert.Equal(t, time.Date(2025, 3, 8, 15, 0, 0, 0, time.UTC), rec.ScheduledFor.Time)
}

func TestPlanner_SubjectCancelled(t *testing.T) {
	h := newHarness(t, SchedulerConfig{})
	a := h.createAction(t, "course-1", 1, func(a *domain.FlowAction) {
		a.Trigger = domain.TriggerSpec{ReferenceEvent: domain.ReferenceEnrollment, Direction: domain.DirectionAfter, DayOffset: 7}
	})
	subject := h.enroll(t, "course-1", "enr-1", t0)

	require.NoError(t, h.planner.HandleEvent(context.Background(), events.LifecycleEvent{
		Kind: events.KindSubjectCancelled, OrganizationID: "org-1", OwnerType: domain.OwnerCourse, OwnerID: "course-1", Subject: &subject,
	}))
	rec := h.record(t, a.ID, subject)
	assert.Equal(t, domain.StatusSkipped, rec.Status)

	// later events for a cancelled subject plan nothing
	h.createAction(t, "course-1", 2)
	h.enroll(t, "course-1", "enr-1", t0)
	all, err := h.repos.Executions.FindBySubject(context.Background(), subject)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPlanner_OwnerDeleted(t *testing.T) {
	h := newHarness(t, SchedulerConfig{})
	a := h.createAction(t, "course-1", 1, func(a *domain.FlowAction) {
		a.Trigger = domain.TriggerSpec{ReferenceEvent: domain.ReferenceEnrollment, Direction: domain.DirectionAfter, DayOffset: 7}
	})
	done := h.createAction(t, "course-1", 0)
	s1 := h.enroll(t, "course-1", "enr-1", t0.Add(-time.Hour))
	h.drain(t)
	require.Equal(t, domain.StatusCompleted, h.record(t, done.ID, s1).Status)

	require.NoError(t, h.planner.HandleEvent(context.Background(), events.LifecycleEvent{
		Kind: events.KindOwnerDeleted, OrganizationID: "org-1", OwnerType: domain.OwnerCourse, OwnerID: "course-1",
	}))

	assert.Equal(t, domain.StatusCancelled, h.record(t, a.ID, s1).Status)
	assert.Equal(t, domain.StatusCompleted, h.record(t, done.ID, s1).Status)
	got, err := h.control.GetAction(context.Background(), a.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestPlanner_NewActionPlansKnownSubjects(t *testing.T) {
	h := newHarness(t, SchedulerConfig{})
	s1 := h.enroll(t, "course-1", "enr-1", t0)
	s2 := h.enroll(t, "course-1", "enr-2", t0)
	a := h.createAction(t, "course-1", 1, func(a *domain.FlowAction) {
		a.Trigger = domain.TriggerSpec{ReferenceEvent: domain.ReferenceEnrollment, Direction: domain.DirectionAfter, DayOffset: 1}
	})
	assert.Equal(t, domain.StatusScheduled, h.record(t, a.ID, s1).Status)
	assert.Equal(t, domain.StatusScheduled, h.record(t, a.ID, s2).Status)
}

func TestPlanner_RejectsInvalidEvent(t *testing.T) {
	h := newHarness(t, SchedulerConfig{})
	err := h.planner.HandleEvent(context.Background(), events.LifecycleEvent{Kind: events.KindEnrolled})
	assert.ErrorIs(t, err, events.ErrInvalidEvent)
}
