package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RealZimboGuy/courseflow/pkg/courseflow/core"
)

func TestAuthController_RequireAuth_ApiKey(t *testing.T) {
	ac := NewAuthController("secret")
	var caller any
	handler := ac.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		caller = r.Context().Value(core.CtxKeyCaller)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/workers", nil)
	req.Header.Set(HeaderAPIKey, "secret")
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if caller != "api-key" {
		t.Errorf("Expected caller in context, got %v", caller)
	}
}

func TestAuthController_RequireAuth_Unauthorized(t *testing.T) {
	ac := NewAuthController("secret")
	called := false
	handler := ac.RequireAuth(func(w http.ResponseWriter, r *http.Request) { called = true })

	for _, key := range []string{"", "wrong", "secret "} {
		req := httptest.NewRequest("GET", "/api/workers", nil)
		if key != "" {
			req.Header.Set(HeaderAPIKey, key)
		}
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("key %q: expected status 401, got %d", key, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
			t.Errorf("key %q: expected problem content type, got %q", key, ct)
		}
	}
	if called {
		t.Error("handler must not run without a valid key")
	}
}

func TestAuthController_RequireAuth_Disabled(t *testing.T) {
	handler := NewAuthController("").RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("GET", "/api/workers", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
}
