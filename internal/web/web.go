package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/config"
	"github.com/RealZimboGuy/courseflow/internal/domain"
)

//go:embed templates
var templatesFS embed.FS

const timeLayout = "2006-01-02 15:04:05"

// DashboardService is the read side of the control surface the dashboard renders.
type DashboardService interface {
	GetAction(ctx context.Context, id int64) (*domain.FlowAction, error)
	ListActions(ctx context.Context, ownerType domain.OwnerType, ownerID string) ([]*domain.FlowAction, error)
	Summary(ctx context.Context, actionID int64) (map[domain.ExecutionStatus]int, error)
	Failures(ctx context.Context, actionID int64, limit int) ([]*domain.ExecutionRecord, error)
	GetExecution(ctx context.Context, id int64) (*domain.ExecutionRecord, error)
	ExecutionEvents(ctx context.Context, recordID int64) ([]domain.ExecutionEvent, error)
	GetOrganization(ctx context.Context, organizationID string) (*domain.Organization, error)
	Workers(ctx context.Context, limit int) ([]*domain.Worker, error)
}

type WebController struct {
	sessions *SessionAuth
	service  DashboardService
	now      func() time.Time
}

func NewWebController(service DashboardService, sessions *SessionAuth) *WebController {
	return &WebController{service: service, sessions: sessions, now: time.Now}
}

// statusOrder is the column order of the status counts.
var statusOrder = []domain.ExecutionStatus{
	domain.StatusPending,
	domain.StatusScheduled,
	domain.StatusClaimed,
	domain.StatusRunning,
	domain.StatusCompleted,
	domain.StatusFailed,
	domain.StatusSkipped,
	domain.StatusCancelled,
}

type statusCount struct {
	Status domain.ExecutionStatus
	Count  int
}

type actionRow struct {
	ID       int64
	Title    string
	Channel  domain.ChannelType
	Trigger  string
	Order    int
	IsActive bool
	Counts   []statusCount
}

type failureRow struct {
	ID        int64
	Subject   string
	Attempts  int
	LastError string
	Modified  string
}

type eventRow struct {
	Type     string
	Attempt  int
	WorkerID int64
	Text     string
	DateTime string
}

type workerRow struct {
	ID        int64
	Name      string
	StartedAt string
	LastAlive string
	CssClass  string
}

func (wc *WebController) render(w http.ResponseWriter, name string, files []string, data any) {
	paths := []string{"templates/fragments/header.html", "templates/fragments/nav.html"}
	for _, f := range files {
		paths = append(paths, "templates/"+f)
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{"hasPrefix": strings.HasPrefix}).ParseFS(templatesFS, paths...)
	if err != nil {
		slog.Error("Failed to parse template", "template", name, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("Failed to execute template", "template", name, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (wc *WebController) homeHandler(w http.ResponseWriter, r *http.Request) {
	wc.render(w, "home", []string{"home.html"}, map[string]any{
		"Title":       "Dashboard",
		"CurrentPath": r.URL.Path,
	})
}

// ownerSearchHandler turns the home page form into an owner page link.
func (wc *WebController) ownerSearchHandler(w http.ResponseWriter, r *http.Request) {
	ownerType := r.URL.Query().Get("ownerType")
	ownerID := strings.TrimSpace(r.URL.Query().Get("ownerId"))
	if ownerID == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/owners/"+ownerType+"/"+ownerID, http.StatusSeeOther)
}

func (wc *WebController) ownerHandler(w http.ResponseWriter, r *http.Request) {
	ownerType := domain.OwnerType(r.PathValue("type"))
	if ownerType != domain.OwnerCourse && ownerType != domain.OwnerSession {
		http.Error(w, "owner type must be course or session", http.StatusBadRequest)
		return
	}
	ownerID := r.PathValue("id")
	actions, err := wc.service.ListActions(r.Context(), ownerType, ownerID)
	if err != nil {
		slog.Error("Failed to list actions", "owner_type", ownerType, "owner_id", ownerID, "error", err)
		http.Error(w, "Failed to load actions", http.StatusInternalServerError)
		return
	}
	rows := make([]actionRow, 0, len(actions))
	for _, a := range actions {
		counts, err := wc.service.Summary(r.Context(), a.ID)
		if err != nil {
			slog.Error("Failed to load action summary", "action_id", a.ID, "error", err)
			http.Error(w, "Failed to load actions", http.StatusInternalServerError)
			return
		}
		rows = append(rows, actionRow{
			ID:       a.ID,
			Title:    a.Title,
			Channel:  a.ChannelType,
			Trigger:  describeTrigger(a.Trigger),
			Order:    a.ExecutionOrder,
			IsActive: a.IsActive,
			Counts:   orderedCounts(counts),
		})
	}
	wc.render(w, "owner", []string{"owner.html"}, map[string]any{
		"Title":       fmt.Sprintf("%s %s", ownerType, ownerID),
		"CurrentPath": r.URL.Path,
		"OwnerType":   ownerType,
		"OwnerID":     ownerID,
		"Statuses":    statusOrder,
		"Actions":     rows,
	})
}

func (wc *WebController) actionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	a, err := wc.service.GetAction(r.Context(), id)
	if err != nil {
		slog.Warn("Failed to get action", "action_id", id, "error", err)
		http.Error(w, "Action not found", http.StatusNotFound)
		return
	}
	counts, err := wc.service.Summary(r.Context(), id)
	if err != nil {
		slog.Error("Failed to load action summary", "action_id", id, "error", err)
		http.Error(w, "Failed to load summary", http.StatusInternalServerError)
		return
	}
	failed, err := wc.service.Failures(r.Context(), id, 50)
	if err != nil {
		slog.Error("Failed to load action failures", "action_id", id, "error", err)
		http.Error(w, "Failed to load failures", http.StatusInternalServerError)
		return
	}
	failures := make([]failureRow, 0, len(failed))
	for _, e := range failed {
		failures = append(failures, failureRow{
			ID:        e.ID,
			Subject:   string(e.Subject.Type) + ":" + e.Subject.ID,
			Attempts:  e.AttemptCount,
			LastError: e.LastError.String,
			Modified:  e.Modified.Local().Format(timeLayout),
		})
	}
	wc.render(w, "action", []string{"action.html"}, map[string]any{
		"Title":       a.Title,
		"CurrentPath": r.URL.Path,
		"Action":      a,
		"Trigger":     describeTrigger(a.Trigger),
		"Counts":      orderedCounts(counts),
		"Failures":    failures,
	})
}

func (wc *WebController) executionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	e, err := wc.service.GetExecution(r.Context(), id)
	if err != nil {
		slog.Warn("Failed to get execution record", "record_id", id, "error", err)
		http.Error(w, "Execution record not found", http.StatusNotFound)
		return
	}
	evs, err := wc.service.ExecutionEvents(r.Context(), id)
	if err != nil {
		slog.Error("Failed to load execution events", "record_id", id, "error", err)
		http.Error(w, "Failed to load events", http.StatusInternalServerError)
		return
	}
	rows := make([]eventRow, 0, len(evs))
	for _, ev := range evs {
		rows = append(rows, eventRow{
			Type:     ev.Type,
			Attempt:  ev.AttemptCount,
			WorkerID: ev.WorkerID,
			Text:     ev.Text,
			DateTime: ev.DateTime.Local().Format(timeLayout),
		})
	}
	scheduledFor := "-"
	if e.ScheduledFor.Valid {
		scheduledFor = e.ScheduledFor.Time.Local().Format(timeLayout)
	}
	wc.render(w, "execution", []string{"execution.html"}, map[string]any{
		"Title":        fmt.Sprintf("Execution %d", e.ID),
		"CurrentPath":  r.URL.Path,
		"Record":       e,
		"ScheduledFor": scheduledFor,
		"Events":       rows,
	})
}

func (wc *WebController) organizationHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	org, err := wc.service.GetOrganization(r.Context(), id)
	if err != nil {
		// organizations without a stored timezone use the default
		org = &domain.Organization{ID: id, Timezone: config.GetSystemSettingString(config.DEFAULT_TIMEZONE)}
	}
	wc.render(w, "organization", []string{"organization.html"}, map[string]any{
		"Title":        "Organization " + id,
		"CurrentPath":  r.URL.Path,
		"Organization": org,
	})
}

func (wc *WebController) workersHandler(w http.ResponseWriter, r *http.Request) {
	workers, err := wc.service.Workers(r.Context(), 50)
	if err != nil {
		slog.Error("Failed to list workers", "error", err)
		http.Error(w, "Failed to load workers", http.StatusInternalServerError)
		return
	}
	rows := make([]workerRow, 0, len(workers))
	for _, wk := range workers {
		rows = append(rows, workerRow{
			ID:        wk.ID,
			Name:      wk.Name,
			StartedAt: wk.Started.Local().Format(timeLayout),
			LastAlive: friendlyTimeAgo(wc.now().Sub(wk.LastActive)),
			CssClass:  statusCssClass(wc.now().Sub(wk.LastActive)),
		})
	}
	wc.render(w, "workers", []string{"workers.html"}, map[string]any{
		"Title":       "Workers",
		"CurrentPath": r.URL.Path,
		"Workers":     rows,
	})
}

// settingsHandler lists the effective engine settings. Secrets are not shown.
func (wc *WebController) settingsHandler(w http.ResponseWriter, r *http.Request) {
	type kv struct{ Key, Value string }
	keys := []string{
		config.DATABASE_TYPE,
		config.ENGINE_SERVER_WEB_PORT,
		config.ENGINE_CHECK_DB_INTERVAL,
		config.ENGINE_BATCH_SIZE,
		config.ENGINE_WORKER_POOL_SIZE,
		config.ENGINE_CLAIM_TIMEOUT,
		config.ENGINE_REPAIR_INTERVAL,
		config.ENGINE_RESOLVE_SCHEDULE,
		config.RETRY_BACKOFF_BASE,
		config.RETRY_BACKOFF_MAX,
		config.DEFAULT_TIMEZONE,
		config.CHANNEL_TIMEOUT,
		config.WEBHOOK_TIMEOUT,
		config.DOCUMENT_TIMEOUT,
		config.KAFKA_BROKERS,
		config.WEB_SESSION_EXPIRY_HOURS,
	}
	rows := make([]kv, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, kv{Key: k, Value: config.GetSystemSettingString(k)})
	}
	wc.render(w, "settings", []string{"settings.html"}, map[string]any{
		"Title":       "Settings",
		"CurrentPath": r.URL.Path,
		"Rows":        rows,
	})
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func orderedCounts(counts map[domain.ExecutionStatus]int) []statusCount {
	out := make([]statusCount, 0, len(statusOrder))
	for _, s := range statusOrder {
		out = append(out, statusCount{Status: s, Count: counts[s]})
	}
	for s, n := range counts {
		if !slices.Contains(statusOrder, s) {
			out = append(out, statusCount{Status: s, Count: n})
		}
	}
	return out
}

func describeTrigger(t domain.TriggerSpec) string {
	ref := string(t.ReferenceEvent)
	if t.ReferenceEvent == domain.ReferenceCustom {
		ref += ":" + t.CustomKey
	}
	var s string
	if t.Direction == domain.DirectionOn {
		s = "on " + ref
	} else {
		s = fmt.Sprintf("%d days %s %s", t.DayOffset, t.Direction, ref)
	}
	if t.TimeOfDay != nil {
		s += " at " + t.TimeOfDay.String()
	}
	return s
}

func friendlyTimeAgo(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}

func statusCssClass(idle time.Duration) string {
	if idle < 2*time.Minute {
		return "bg-green-300"
	} else if idle < 10*time.Minute {
		return "bg-amber-200"
	}
	return "bg-gray-200"
}
