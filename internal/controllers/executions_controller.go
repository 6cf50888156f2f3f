package controllers

import (
	"net/http"

	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/internal/util"
)

type ExecutionsController struct {
	AuthController
	Executions ExecutionService
}

func NewExecutionsController(executions ExecutionService, auth AuthController) *ExecutionsController {
	return &ExecutionsController{Executions: executions, AuthController: auth}
}

func (c *ExecutionsController) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := c.Executions.GetExecution(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, rec)
}

func (c *ExecutionsController) handleGetExecutionEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	evs, err := c.Executions.ExecutionEvents(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if evs == nil {
		evs = []domain.ExecutionEvent{}
	}
	util.WriteJSONResponse(w, http.StatusOK, evs)
}

func (c *ExecutionsController) handleGetSubjectExecutions(w http.ResponseWriter, r *http.Request) {
	subject := domain.Subject{Type: domain.SubjectType(r.PathValue("type")), ID: r.PathValue("id")}
	switch subject.Type {
	case domain.SubjectEnrollment, domain.SubjectSession, domain.SubjectSessionSlot:
	default:
		badRequest(w, r, "unknown subject type "+string(subject.Type))
		return
	}
	list, err := c.Executions.SubjectExecutions(r.Context(), subject)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.ExecutionRecord{}
	}
	util.WriteJSONResponse(w, http.StatusOK, list)
}
