package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/internal/engine"
	"github.com/RealZimboGuy/courseflow/internal/events"
	"github.com/RealZimboGuy/courseflow/internal/repository"
	"github.com/RealZimboGuy/courseflow/internal/util"
)

func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	util.WriteProblem(w, r, http.StatusBadRequest, "validation_error", detail)
}

func notFound(w http.ResponseWriter, r *http.Request, detail string) {
	util.WriteProblem(w, r, http.StatusNotFound, "not_found", detail)
}

// handleServiceError maps engine and repository errors to problem documents.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		notFound(w, r, "resource not found")
	case errors.Is(err, domain.ErrInvalidFlowAction),
		errors.Is(err, events.ErrInvalidEvent),
		errors.Is(err, engine.ErrInvalidTimezone):
		badRequest(w, r, err.Error())
	default:
		// internals stay in the log
		slog.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		util.WriteProblem(w, r, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, r, "id must be a positive integer")
		return 0, false
	}
	return id, true
}
