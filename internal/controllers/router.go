package controllers

import "net/http"

// RegisterRoutes wires the HTTP routes for this controller.
func (c *ActionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/actions", c.RequireAuth(c.handleCreateAction))
	mux.HandleFunc("GET /api/actions", c.RequireAuth(c.handleListActions))
	mux.HandleFunc("GET /api/actions/{id}", c.RequireAuth(c.handleGetAction))
	mux.HandleFunc("PUT /api/actions/{id}", c.RequireAuth(c.handleUpdateAction))
	mux.HandleFunc("DELETE /api/actions/{id}", c.RequireAuth(c.handleDeleteAction))
	mux.HandleFunc("POST /api/actions/{id}/deactivate", c.RequireAuth(c.handleDeactivateAction))
	mux.HandleFunc("POST /api/actions/{id}/activate", c.RequireAuth(c.handleActivateAction))
	mux.HandleFunc("GET /api/actions/{id}/summary", c.RequireAuth(c.handleSummary))
	mux.HandleFunc("GET /api/actions/{id}/failures", c.RequireAuth(c.handleFailures))
}
func (c *ExecutionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/executions/{id}", c.RequireAuth(c.handleGetExecution))
	mux.HandleFunc("GET /api/executions/{id}/events", c.RequireAuth(c.handleGetExecutionEvents))
	mux.HandleFunc("GET /api/subjects/{type}/{id}/executions", c.RequireAuth(c.handleGetSubjectExecutions))
}
func (c *OrganizationsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/organizations/{id}", c.RequireAuth(c.handleGetOrganization))
	mux.HandleFunc("POST /api/organizations/{id}/pause", c.RequireAuth(c.handlePause))
	mux.HandleFunc("POST /api/organizations/{id}/resume", c.RequireAuth(c.handleResume))
	mux.HandleFunc("PUT /api/organizations/{id}/timezone", c.RequireAuth(c.handleSetTimezone))
}
func (c *EventsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/events", c.RequireAuth(c.handlePublishEvent))
}
func (c *WorkersController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/workers", c.RequireAuth(c.handleGetWorkers))
}

// NewRouter builds the API mux over a single control surface.
func NewRouter(actions ActionService, executions ExecutionService, organizations OrganizationService,
	workers WorkerService, publisher EventPublisher, auth AuthController) *http.ServeMux {
	mux := http.NewServeMux()
	NewActionsController(actions, auth).RegisterRoutes(mux)
	NewExecutionsController(executions, auth).RegisterRoutes(mux)
	NewOrganizationsController(organizations, auth).RegisterRoutes(mux)
	NewEventsController(publisher, auth).RegisterRoutes(mux)
	NewWorkersController(workers, auth).RegisterRoutes(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
