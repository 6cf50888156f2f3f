package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

func TestInsertIfAbsent_OneRowPerActionAndSubject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.action(t, "course-1", 1)

	first := f.record(t, a, "enr-1", domain.StatusPending, time.Time{})
	assert.NotZero(t, first.ID)

	dup := &domain.ExecutionRecord{
		FlowActionID: a.ID, OrganizationID: "org-1", OwnerType: a.OwnerType, OwnerID: a.OwnerID,
		Subject: first.Subject, Status: domain.StatusPending, IdempotencyKey: "x", Created: t0, Modified: t0,
	}
	inserted, err := f.executions.InsertIfAbsent(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := f.executions.FindByActionAndSubject(ctx, a.ID, first.Subject)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.False(t, got.ScheduledFor.Valid)
}

func TestFindByID_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.executions.FindByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaim_ExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.action(t, "course-1", 1)
	e := f.record(t, a, "enr-1", domain.StatusScheduled, t0)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := f.executions.Claim(ctx, e.ID, "worker-"+string(rune('a'+i)), t0)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	got, err := f.executions.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClaimed, got.Status)
	assert.True(t, got.ClaimedBy.Valid)
	assert.True(t, got.ClaimedAt.Valid)
}

func TestLifecycle_ClaimRunComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.action(t, "course-1", 1)
	e := f.record(t, a, "enr-1", domain.StatusScheduled, t0)

	ok, err := f.executions.MarkRunning(ctx, e.ID, "w1", t0)
	require.NoError(t, err)
	assert.False(t, ok, "cannot run before claiming")

	ok, _ = f.executions.Claim(ctx, e.ID, "w1", t0)
	require.True(t, ok)
	ok, _ = f.executions.MarkRunning(ctx, e.ID, "w2", t0)
	assert.False(t, ok, "another worker cannot run it")
	ok, _ = f.executions.MarkRunning(ctx, e.ID, "w1", t0)
	require.True(t, ok)

	ok, err = f.executions.Complete(ctx, e.ID, "w1", "msg-42", t0.Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	got, err := f.executions.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "msg-42", got.ResultRef.String)
	assert.Equal(t, t0.Add(time.Second), got.ExecutedAt.Time)

	// terminal rows never move
	n, err := f.executions.SkipNonTerminalByAction(ctx, a.ID, "deactivated", t0)
	require.NoError(t, err)
	assert.Empty(t, n)
	ok, _ = f.executions.Claim(ctx, e.ID, "w1", t0)
	assert.False(t, ok)
}

func TestReschedule_ReleasesClaimAndKeepsKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.action(t, "course-1", 1)
	e := f.record(t, a, "enr-1", domain.StatusScheduled, t0)

	_, _ = f.executions.Claim(ctx, e.ID, "w1", t0)
	_, _ = f.executions.MarkRunning(ctx, e.ID, "w1", t0)
	ok, err := f.executions.Reschedule(ctx, e.ID, "w1", 1, t0.Add(time.Minute), "503 from provider", t0)
	require.NoError(t, err)
	require.True(t, ok)

	got, _ := f.executions.FindByID(ctx, e.ID)
	assert.Equal(t, domain.StatusScheduled, got.Status)
	assert.False(t, got.ClaimedBy.Valid)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Equal(t, "503 from provider", got.LastError.String)
	assert.Equal(t, e.IdempotencyKey, got.IdempotencyKey)
	assert.Equal(t, t0.Add(time.Minute), got.ScheduledFor.Time)

	due, err := f.executions.FindDue(ctx, t0, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "retry not yet due")
	due, _ = f.executions.FindDue(ctx, t0.Add(time.Minute), 10)
	assert.Len(t, due, 1)
}

func TestFindDue_OrderingAndSiblingGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a3 := f.action(t, "course-1", 3)
	a1 := f.action(t, "course-1", 1)
	a2 := f.action(t, "course-1", 2)

	r3 := f.record(t, a3, "enr-1", domain.StatusScheduled, t0)
	r1 := f.record(t, a1, "enr-1", domain.StatusScheduled, t0.Add(-time.Hour))
	r2 := f.record(t, a2, "enr-1", domain.StatusScheduled, t0)
	other := f.record(t, a1, "enr-2", domain.StatusScheduled, t0)
	f.record(t, a2, "enr-2", domain.StatusScheduled, t0.Add(time.Hour))

	due, err := f.executions.FindDue(ctx, t0, 10)
	require.NoError(t, err)
	ids := make([]int64, len(due))
	for i, d := range due {
		ids[i] = d.ID
	}
	assert.Equal(t, []int64{r1.ID, r2.ID, r3.ID, other.ID}, ids)

	// while order 1 is in flight, 2 and 3 are held back
	_, _ = f.executions.Claim(ctx, r1.ID, "w1", t0)
	due, _ = f.executions.FindDue(ctx, t0, 10)
	require.Len(t, due, 1)
	assert.Equal(t, other.ID, due[0].ID)

	// a retry waiting on order 1 keeps holding them back
	_, _ = f.executions.MarkRunning(ctx, r1.ID, "w1", t0)
	_, _ = f.executions.Reschedule(ctx, r1.ID, "w1", 1, t0.Add(time.Hour), "timeout", t0)
	due, _ = f.executions.FindDue(ctx, t0, 10)
	require.Len(t, due, 1)

	// once the retry is due it runs first; 2 and 3 wait for its outcome
	due, _ = f.executions.FindDue(ctx, t0.Add(time.Hour), 10)
	require.Len(t, due, 3)
	assert.Equal(t, r1.ID, due[0].ID)
	assert.Equal(t, other.ID, due[1].ID)
}

func TestSkipNonTerminalByAction_LeavesCompletedAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.action(t, "course-1", 1)
	s1 := f.record(t, a, "enr-1", domain.StatusScheduled, t0)
	s2 := f.record(t, a, "enr-2", domain.StatusScheduled, t0)
	done := f.record(t, a, "enr-3", domain.StatusScheduled, t0)
	_, _ = f.executions.Claim(ctx, done.ID, "w1", t0)
	_, _ = f.executions.MarkRunning(ctx, done.ID, "w1", t0)
	_, _ = f.executions.Complete(ctx, done.ID, "w1", "", t0)

	skipped, err := f.executions.SkipNonTerminalByAction(ctx, a.ID, "action deactivated", t0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{s1.ID, s2.ID}, skipped)

	summary, err := f.executions.StatusSummary(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary[domain.StatusSkipped])
	assert.Equal(t, 1, summary[domain.StatusCompleted])
	assert.Equal(t, 0, summary[domain.StatusScheduled])

	got, _ := f.executions.FindByID(ctx, done.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestCancelNonTerminalByOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.action(t, "course-1", 1)
	b := f.action(t, "course-2", 1)
	p := f.record(t, a, "enr-1", domain.StatusPending, time.Time{})
	s := f.record(t, a, "enr-2", domain.StatusScheduled, t0)
	untouched := f.record(t, b, "enr-3", domain.StatusScheduled, t0)

	cancelled, err := f.executions.CancelNonTerminalByOwner(ctx, domain.OwnerCourse, "course-1", "course deleted", t0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{p.ID, s.ID}, cancelled)

	got, _ := f.executions.FindByID(ctx, untouched.ID)
	assert.Equal(t, domain.StatusScheduled, got.Status)
	got, _ = f.executions.FindByID(ctx, p.ID)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Equal(t, "course deleted", got.LastError.String)
}

func TestStaleClaims_AreReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.action(t, "course-1", 1)
	e := f.record(t, a, "enr-1", domain.StatusScheduled, t0)
	_, _ = f.executions.Claim(ctx, e.ID, "dead-worker", t0)

	stale, err := f.executions.FindStaleClaims(ctx, t0, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	stale, err = f.executions.FindStaleClaims(ctx, t0.Add(10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	ok, err := f.executions.ResetStaleClaim(ctx, stale[0], t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = f.executions.ResetStaleClaim(ctx, stale[0], t0.Add(10*time.Minute))
	assert.False(t, ok, "second reset finds nothing to do")

	got, _ := f.executions.FindByID(ctx, e.ID)
	assert.Equal(t, domain.StatusScheduled, got.Status)
	assert.False(t, got.ClaimedBy.Valid)
}

func TestScheduleAndMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.action(t, "course-1", 1)
	e := f.record(t, a, "enr-1", domain.StatusPending, time.Time{})

	pending, err := f.executions.FindPending(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	ok, err := f.executions.Schedule(ctx, e.ID, t0, t0)
	require.NoError(t, err)
	require.True(t, ok)
	ok, _ = f.executions.Schedule(ctx, e.ID, t0, t0)
	assert.False(t, ok, "only pending records are scheduled")

	newKey := domain.IdempotencyKey(a.ID, e.Subject, 1)
	ok, err = f.executions.MoveSchedule(ctx, e.ID, 0, t0.Add(24*time.Hour), newKey, t0)
	require.NoError(t, err)
	require.True(t, ok)
	ok, _ = f.executions.MoveSchedule(ctx, e.ID, 0, t0, newKey, t0)
	assert.False(t, ok, "stale epoch")

	got, _ := f.executions.FindByID(ctx, e.ID)
	assert.Equal(t, 1, got.Epoch)
	assert.Equal(t, newKey, got.IdempotencyKey)
	assert.Equal(t, t0.Add(24*time.Hour), got.ScheduledFor.Time)
}

func TestSkip_RejectsIllegalTransition(t *testing.T) {
	f := newFixture(t)
	a := f.action(t, "course-1", 1)
	e := f.record(t, a, "enr-1", domain.StatusScheduled, t0)
	_, err := f.executions.Skip(context.Background(), e.ID, "w1", domain.StatusCompleted, "nope", t0)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
