package web

import "net/http"

func (c *WebController) RegisterRoutes(mux *http.ServeMux) {
	// Public routes
	mux.HandleFunc("GET /login", c.loginPageHandler)
	mux.HandleFunc("POST /login", c.loginSubmitHandler)

	// Protected routes
	auth := c.sessions.RequireSession
	mux.HandleFunc("GET /{$}", auth(c.homeHandler))
	mux.HandleFunc("POST /logout", auth(c.logoutHandler))
	mux.HandleFunc("GET /owners", auth(c.ownerSearchHandler))
	mux.HandleFunc("GET /owners/{type}/{id}", auth(c.ownerHandler))
	mux.HandleFunc("GET /actions/{id}", auth(c.actionHandler))
	mux.HandleFunc("GET /executions/{id}", auth(c.executionHandler))
	mux.HandleFunc("GET /organizations/{id}", auth(c.organizationHandler))
	mux.HandleFunc("GET /workers", auth(c.workersHandler))
	mux.HandleFunc("GET /settings", auth(c.settingsHandler))
}
