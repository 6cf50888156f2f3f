package common

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/config"
	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/internal/events"
	"github.com/RealZimboGuy/courseflow/internal/models"
	"github.com/RealZimboGuy/courseflow/internal/util"
	"github.com/RealZimboGuy/courseflow/pkg/courseflow"
)

const APIKey = "b5f0e8c4-daa6-465c-bded-50ca22b798b2"

// DeliveryRecorder stands in for the template delivery service.
type DeliveryRecorder struct {
	mu       sync.Mutex
	Messages []map[string]any
}

func (d *DeliveryRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	d.mu.Lock()
	d.Messages = append(d.Messages, body)
	n := len(d.Messages)
	d.mu.Unlock()
	util.WriteJSONResponse(w, http.StatusOK, map[string]string{"reference": "msg-" + strconv.Itoa(n)})
}

func (d *DeliveryRecorder) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Messages)
}

// StartServer boots a full courseflow process on port against the database
// the caller configured, with a fake delivery service. It stops with the test.
func StartServer(t *testing.T, port int) *DeliveryRecorder {
	t.Helper()
	delivery := &DeliveryRecorder{}
	srv := httptest.NewServer(delivery)
	t.Cleanup(srv.Close)

	os.Setenv(config.ENGINE_SERVER_WEB_PORT, strconv.Itoa(port))
	os.Setenv(config.ENGINE_CHECK_DB_INTERVAL, "200ms")
	os.Setenv(config.API_KEY, APIKey)
	os.Setenv(config.DELIVERY_URL, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	app, err := courseflow.New(ctx)
	if err != nil {
		cancel()
		t.Fatalf("Failed to start courseflow: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := app.Serve(ctx); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		app.Close()
	})
	WaitFor(t, 10*time.Second, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://localhost:%d/healthz", port))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})
	return delivery
}

func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// Call sends an authenticated JSON request and decodes the response into T.
func Call[T any](t *testing.T, method, url string, body any, wantStatus int) T {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", APIKey)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	if resp.StatusCode != wantStatus {
		resp.Body.Close()
		t.Fatalf("%s %s: expected %d, got %d", method, url, wantStatus, resp.StatusCode)
	}
	out, err := util.DecodeJSONBodyResponse[T](resp)
	if err != nil {
		t.Fatalf("Failed to decode %s %s response: %v", method, url, err)
	}
	return out
}

// RunEnrollmentScenario drives a welcome email and a deactivated follow-up
// through the HTTP API and checks the ledger afterwards.
func RunEnrollmentScenario(t *testing.T, port int) {
	delivery := StartServer(t, port)
	base := fmt.Sprintf("http://localhost:%d", port)

	newAction := func(title string, order int, days int, direction domain.Direction) domain.FlowAction {
		return Call[domain.FlowAction](t, "POST", base+"/api/actions", models.FlowActionRequest{
			OrganizationID: "org-it",
			OwnerType:      domain.OwnerCourse,
			OwnerID:        "course-it",
			Title:          title,
			ChannelType:    domain.ChannelEmail,
			RecipientRole:  domain.RoleLearner,
			Destination:    "tpl-" + title,
			Trigger:        domain.TriggerSpec{ReferenceEvent: domain.ReferenceEnrollment, Direction: direction, DayOffset: days},
			ExecutionOrder: order,
		}, http.StatusCreated)
	}
	welcome := newAction("welcome", 1, 0, domain.DirectionOn)
	followUp := newAction("follow-up", 2, 7, domain.DirectionAfter)

	at := time.Now().UTC().Add(-time.Minute)
	for _, id := range []string{"enr-1", "enr-2"} {
		Call[models.PublishEventResponse](t, "POST", base+"/api/events", map[string]any{
			"kind":           "enrolled",
			"organizationId": "org-it",
			"ownerType":      "course",
			"ownerId":        "course-it",
			"subject":        map[string]string{"type": "enrollment", "id": id},
			"at":             at,
			"attributes":     map[string]string{"learner_email": id + "@example.com"},
		}, http.StatusAccepted)
	}

	WaitFor(t, 15*time.Second, func() bool { return delivery.Count() == 2 })

	summary := Call[models.ActionSummaryResponse](t, "GET", fmt.Sprintf("%s/api/actions/%d/summary", base, welcome.ID), nil, http.StatusOK)
	if summary.Counts[domain.StatusCompleted] != 2 {
		t.Errorf("Expected 2 completed welcome records, got %v", summary.Counts)
	}

	deactivated := Call[models.DeactivateActionResponse](t, "POST", fmt.Sprintf("%s/api/actions/%d/deactivate", base, followUp.ID), nil, http.StatusOK)
	if len(deactivated.SkippedRecords) != 2 {
		t.Errorf("Expected 2 skipped follow-up records, got %v", deactivated.SkippedRecords)
	}

	records := Call[[]domain.ExecutionRecord](t, "GET", base+"/api/subjects/enrollment/enr-1/executions", nil, http.StatusOK)
	if len(records) != 2 {
		t.Fatalf("Expected 2 records for enr-1, got %d", len(records))
	}
	statuses := map[int64]domain.ExecutionStatus{}
	for _, r := range records {
		statuses[r.FlowActionID] = r.Status
	}
	if statuses[welcome.ID] != domain.StatusCompleted || statuses[followUp.ID] != domain.StatusSkipped {
		t.Errorf("Unexpected statuses for enr-1: %v", statuses)
	}

	evs := Call[[]domain.ExecutionEvent](t, "GET", fmt.Sprintf("%s/api/executions/%d/events", base, records[0].ID), nil, http.StatusOK)
	if len(evs) == 0 {
		t.Error("Expected an audit trail")
	}
	if delivery.Count() != 2 {
		t.Errorf("Expected exactly 2 deliveries, got %d", delivery.Count())
	}
}

// RunConcurrentTickScenario runs two processes against one database and
// checks that every planned record is dispatched exactly once.
func RunConcurrentTickScenario(t *testing.T) {
	delivery := &DeliveryRecorder{}
	srv := httptest.NewServer(delivery)
	defer srv.Close()
	os.Setenv(config.DELIVERY_URL, srv.URL)

	ctx := context.Background()
	first, err := courseflow.New(ctx)
	if err != nil {
		t.Fatalf("Failed to start first process: %v", err)
	}
	defer first.Close()
	second, err := courseflow.New(ctx)
	if err != nil {
		t.Fatalf("Failed to start second process: %v", err)
	}
	defer second.Close()

	action, err := first.Control.CreateAction(ctx, &domain.FlowAction{
		OrganizationID: "org-race",
		OwnerType:      domain.OwnerCourse,
		OwnerID:        "course-race",
		Title:          "welcome",
		ChannelType:    domain.ChannelEmail,
		RecipientRole:  domain.RoleLearner,
		Destination:    "tpl-welcome",
		Trigger:        domain.TriggerSpec{ReferenceEvent: domain.ReferenceEnrollment, Direction: domain.DirectionOn},
		ExecutionOrder: 1,
		IsActive:       true,
	})
	if err != nil {
		t.Fatalf("Failed to create action: %v", err)
	}

	const subjects = 20
	at := time.Now().UTC().Add(-time.Minute)
	for i := range subjects {
		id := fmt.Sprintf("race-%d", i)
		err := first.Planner.HandleEvent(ctx, events.LifecycleEvent{
			Kind:           events.KindEnrolled,
			OrganizationID: "org-race",
			OwnerType:      domain.OwnerCourse,
			OwnerID:        "course-race",
			Subject:        &domain.Subject{Type: domain.SubjectEnrollment, ID: id},
			At:             &at,
			Attributes:     map[string]string{"learner_email": id + "@example.com"},
			OccurredAt:     at,
		})
		if err != nil {
			t.Fatalf("Failed to plan %s: %v", id, err)
		}
	}

	var wg sync.WaitGroup
	for _, app := range []*courseflow.App{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := app.Tick(ctx); err != nil {
				t.Errorf("Tick failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if delivery.Count() != subjects {
		t.Errorf("Expected %d deliveries, got %d", subjects, delivery.Count())
	}
	summary, err := first.Control.Summary(ctx, action.ID)
	if err != nil {
		t.Fatalf("Failed to load summary: %v", err)
	}
	if summary[domain.StatusCompleted] != subjects {
		t.Errorf("Expected %d completed records, got %v", subjects, summary)
	}
}
