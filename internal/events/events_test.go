package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func enrolled() LifecycleEvent {
	at := t0
	return LifecycleEvent{
		Kind:           KindEnrolled,
		OrganizationID: "org-1",
		OwnerType:      domain.OwnerCourse,
		OwnerID:        "course-1",
		Subject:        &domain.Subject{Type: domain.SubjectEnrollment, ID: "enr-1"},
		At:             &at,
		Attributes:     map[string]string{"learner_email": "ada@example.com"},
	}
}

func TestLifecycleEvent_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *LifecycleEvent)
		ok     bool
	}{
		{"valid", func(e *LifecycleEvent) {}, true},
		{"unknown kind", func(e *LifecycleEvent) { e.Kind = "graduated" }, false},
		{"missing org", func(e *LifecycleEvent) { e.OrganizationID = "" }, false},
		{"missing subject", func(e *LifecycleEvent) { e.Subject = nil }, false},
		{"bad subject type", func(e *LifecycleEvent) { e.Subject.Type = "learner" }, false},
		{"missing date", func(e *LifecycleEvent) { e.At = nil }, false},
		{"custom without key", func(e *LifecycleEvent) { e.Kind = KindCustomDate }, false},
		{"custom with key", func(e *LifecycleEvent) { e.Kind = KindCustomDate; e.CustomKey = "exam" }, true},
		{"session without start", func(e *LifecycleEvent) { e.Kind = KindSessionScheduled }, false},
		{"owner deleted without subject", func(e *LifecycleEvent) {
			e.Kind = KindOwnerDeleted
			e.Subject = nil
			e.At = nil
		}, true},
		{"cancel needs no date", func(e *LifecycleEvent) { e.Kind = KindSubjectCancelled; e.At = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := enrolled()
			tt.mutate(&ev)
			err := ev.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidEvent)
			}
		})
	}
}

func TestLifecycleEvent_Apply(t *testing.T) {
	ev := enrolled()
	snap := ev.Apply(nil, t0)
	assert.Equal(t, domain.SubjectActive, snap.Status)
	assert.True(t, snap.EnrollmentDate.Valid)
	assert.Equal(t, "ada@example.com", snap.Attributes["learner_email"])

	start := t0.Add(72 * time.Hour)
	session := LifecycleEvent{Kind: KindSessionScheduled, OrganizationID: "org-1", OwnerType: domain.OwnerCourse,
		OwnerID: "course-1", Subject: ev.Subject, SessionStart: &start}
	snap = session.Apply(snap, t0)
	assert.Equal(t, start, snap.SessionStart.Time)
	assert.True(t, snap.EnrollmentDate.Valid, "earlier facts are kept")

	exam := t0.Add(96 * time.Hour)
	custom := LifecycleEvent{Kind: KindCustomDate, OrganizationID: "org-1", OwnerType: domain.OwnerCourse,
		OwnerID: "course-1", Subject: ev.Subject, At: &exam, CustomKey: "exam"}
	snap = custom.Apply(snap, t0)
	assert.Equal(t, exam, snap.CustomDates["exam"])

	cancel := LifecycleEvent{Kind: KindSubjectCancelled, OrganizationID: "org-1", OwnerType: domain.OwnerCourse,
		OwnerID: "course-1", Subject: ev.Subject}
	snap = cancel.Apply(snap, t0.Add(time.Hour))
	assert.True(t, snap.IsCancelled())
	assert.Equal(t, t0.Add(time.Hour), snap.Modified)
}

func testBus(t *testing.T) *Bus {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 10, Persistent: true}, watermill.NopLogger{})
	bus := NewBus(pubSub, pubSub, nil)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestBus_PublishAndListen(t *testing.T) {
	bus := testBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.PublishLifecycle(ctx, enrolled()))

	var mu sync.Mutex
	var got []LifecycleEvent
	attempts := 0
	done := make(chan struct{})
	go func() {
		_ = bus.Listen(ctx, func(ctx context.Context, ev LifecycleEvent) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts == 1 {
				return assert.AnError
			}
			got = append(got, ev)
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts, "nacked event is redelivered")
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, KindEnrolled, got[0].Kind)
}

func TestBus_RejectsInvalidAndDropsMalformed(t *testing.T) {
	bus := testBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bad := enrolled()
	bad.OwnerID = ""
	assert.ErrorIs(t, bus.PublishLifecycle(ctx, bad), ErrInvalidEvent)

	require.NoError(t, bus.publisher.Publish(TopicLifecycle, message.NewMessage(watermill.NewULID(), []byte("{not json"))))
	require.NoError(t, bus.PublishLifecycle(ctx, enrolled()))

	delivered := make(chan LifecycleEvent, 2)
	go func() {
		_ = bus.Listen(ctx, func(ctx context.Context, ev LifecycleEvent) error {
			delivered <- ev
			return nil
		})
	}()

	select {
	case ev := <-delivered:
		assert.Equal(t, "enr-1", ev.Subject.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("valid event not delivered after malformed one")
	}
}

func TestBus_Alerts(t *testing.T) {
	bus := testBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alerts, err := bus.Alerts(ctx)
	require.NoError(t, err)
	require.NoError(t, bus.PublishAlert(ctx, domain.FailureAlert{RecordID: 5, Reason: "410 Gone", Permanent: true}))

	select {
	case a := <-alerts:
		assert.Equal(t, int64(5), a.RecordID)
		assert.True(t, a.Permanent)
	case <-time.After(5 * time.Second):
		t.Fatal("alert not delivered")
	}
}
