package controllers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/internal/models"
	"github.com/RealZimboGuy/courseflow/internal/util"
)

type ActionsController struct {
	AuthController
	Actions ActionService
}

func NewActionsController(actions ActionService, auth AuthController) *ActionsController {
	return &ActionsController{Actions: actions, AuthController: auth}
}

func (c *ActionsController) handleCreateAction(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[models.FlowActionRequest](r)
	if err != nil {
		badRequest(w, r, "invalid JSON payload")
		return
	}
	created, err := c.Actions.CreateAction(r.Context(), req.ToFlowAction())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusCreated, created)
}

func (c *ActionsController) handleGetAction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := c.Actions.GetAction(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, a)
}

func (c *ActionsController) handleListActions(w http.ResponseWriter, r *http.Request) {
	ownerType := domain.OwnerType(r.URL.Query().Get("ownerType"))
	ownerID := r.URL.Query().Get("ownerId")
	if ownerID == "" || (ownerType != domain.OwnerCourse && ownerType != domain.OwnerSession) {
		badRequest(w, r, "ownerType (course|session) and ownerId are required")
		return
	}
	list, err := c.Actions.ListActions(r.Context(), ownerType, ownerID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.FlowAction{}
	}
	util.WriteJSONResponse(w, http.StatusOK, list)
}

func (c *ActionsController) handleUpdateAction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := util.DecodeJSONBody[models.FlowActionRequest](r)
	if err != nil {
		badRequest(w, r, "invalid JSON payload")
		return
	}
	a := req.ToFlowAction()
	a.ID = id
	updated, err := c.Actions.UpdateAction(r.Context(), a)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, updated)
}

func (c *ActionsController) handleDeleteAction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	deleted, err := c.Actions.DeleteAction(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, models.DeleteActionResponse{ID: id, Deleted: deleted, Deactivated: !deleted})
}

func (c *ActionsController) handleDeactivateAction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	skipped, err := c.Actions.DeactivateAction(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if skipped == nil {
		skipped = []int64{}
	}
	slog.InfoContext(r.Context(), "Flow action deactivated via API", "action_id", id, "records_skipped", len(skipped))
	util.WriteJSONResponse(w, http.StatusOK, models.DeactivateActionResponse{ID: id, SkippedRecords: skipped})
}

func (c *ActionsController) handleActivateAction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := c.Actions.ActivateAction(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a, err := c.Actions.GetAction(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, a)
}

func (c *ActionsController) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	counts, err := c.Actions.Summary(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, models.ActionSummaryResponse{ID: id, Counts: counts})
}

func (c *ActionsController) handleFailures(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(w, r, "limit must be a positive integer")
			return
		}
		limit = n
	}
	failed, err := c.Actions.Failures(r.Context(), id, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if failed == nil {
		failed = []*domain.ExecutionRecord{}
	}
	util.WriteJSONResponse(w, http.StatusOK, failed)
}
