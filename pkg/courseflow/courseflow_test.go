package courseflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/courseflow/internal/config"
	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/internal/events"
)

func TestDatabaseSettings(t *testing.T) {
	tests := []struct {
		name, typ, url string
		wantDialect    string
		wantErr        bool
	}{
		{"postgres", "POSTGRES", "postgres://u:p@localhost/db?sslmode=disable", "postgres", false},
		{"postgres without url", "POSTGRES", "", "", true},
		{"mysql", "MYSQL", "mysql://u:p@tcp(localhost:3306)/db?parseTime=true", "mysql", false},
		{"mysql without parseTime", "MYSQL", "mysql://u:p@tcp(localhost:3306)/db", "", true},
		{"mysql without scheme", "MYSQL", "u:p@tcp(localhost:3306)/db?parseTime=true", "", true},
		{"sqlite", "SQLLITE", "", "sqlite3", false},
		{"unknown", "ORACLE", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(config.DATABASE_TYPE, tt.typ)
			t.Setenv(config.DATABASE_URL, tt.url)
			_, _, dialect, err := DatabaseSettings()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDialect, dialect)
		})
	}
}

type received struct {
	mu    sync.Mutex
	paths []string
	keys  []string
}

func (r *received) handler(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.paths = append(r.paths, req.URL.Path)
	r.keys = append(r.keys, req.Header.Get("Idempotency-Key"))
	r.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"reference": "ref-" + req.URL.Path})
}

func (r *received) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...), append([]string(nil), r.keys...)
}

func TestApp_EndToEndOnSQLite(t *testing.T) {
	rcv := &received{}
	srv := httptest.NewServer(http.HandlerFunc(rcv.handler))
	defer srv.Close()

	t.Setenv(config.DATABASE_TYPE, config.DATABASE_TYPE_SQLLITE)
	t.Setenv(config.DATABASE_SQLLITE_FILE_NAME, filepath.Join(t.TempDir(), "courseflow.db"))
	t.Setenv(config.DELIVERY_URL, srv.URL)
	t.Setenv(config.SERVICE_URL, srv.URL+"/services/")
	t.Setenv(config.REDIS_URL, "")
	t.Setenv(config.KAFKA_BROKERS, "")

	ctx := context.Background()
	app, err := New(ctx)
	require.NoError(t, err)
	defer app.Close()

	welcome := &domain.FlowAction{
		OrganizationID: "org-1", OwnerType: domain.OwnerCourse, OwnerID: "course-1", Title: "Welcome",
		ChannelType: domain.ChannelEmail, RecipientRole: domain.RoleLearner, Destination: "tpl-welcome",
		Trigger:        domain.TriggerSpec{ReferenceEvent: domain.ReferenceEnrollment, Direction: domain.DirectionOn},
		ExecutionOrder: 1, IsActive: true,
	}
	_, err = app.Control.CreateAction(ctx, welcome)
	require.NoError(t, err)
	enroll := &domain.FlowAction{
		OrganizationID: "org-1", OwnerType: domain.OwnerCourse, OwnerID: "course-1", Title: "Seat",
		ChannelType: domain.ChannelEnrollment, RecipientRole: domain.RoleAdmin, Destination: "reserve-seat",
		Trigger:        domain.TriggerSpec{ReferenceEvent: domain.ReferenceEnrollment, Direction: domain.DirectionOn},
		ExecutionOrder: 2, IsActive: true,
	}
	_, err = app.Control.CreateAction(ctx, enroll)
	require.NoError(t, err)

	subject := domain.Subject{Type: domain.SubjectEnrollment, ID: "enr-1"}
	at := time.Now().Add(-time.Minute)
	require.NoError(t, app.Planner.HandleEvent(ctx, events.LifecycleEvent{
		Kind: events.KindEnrolled, OrganizationID: "org-1", OwnerType: domain.OwnerCourse, OwnerID: "course-1",
		Subject: &subject, At: &at, Attributes: map[string]string{"learner_email": "ada@example.com"},
	}))

	res, err := app.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Claimed)

	paths, keys := rcv.snapshot()
	assert.Equal(t, []string{"/messages", "/services/enrollment"}, paths)
	assert.NotEqual(t, keys[0], keys[1])

	recs, err := app.Control.SubjectExecutions(ctx, subject)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, domain.StatusCompleted, r.Status)
	}

	// a second tick finds nothing and repeats no side effect
	res, err = app.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)
	paths, _ = rcv.snapshot()
	assert.Len(t, paths, 2)
}

func TestApp_HandlerRequiresAPIKey(t *testing.T) {
	t.Setenv(config.DATABASE_TYPE, config.DATABASE_TYPE_SQLLITE)
	t.Setenv(config.DATABASE_SQLLITE_FILE_NAME, filepath.Join(t.TempDir(), "courseflow.db"))
	t.Setenv(config.API_KEY, "k")
	t.Setenv(config.REDIS_URL, "")
	t.Setenv(config.KAFKA_BROKERS, "")

	app, err := New(context.Background())
	require.NoError(t, err)
	defer app.Close()

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/workers")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest("GET", srv.URL+"/api/workers", nil)
	req.Header.Set("X-API-Key", "k")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err = noRedirect.Get(srv.URL + "/workers")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}
