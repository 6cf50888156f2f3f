package controllers

import (
	"net/http"

	"github.com/RealZimboGuy/courseflow/internal/models"
	"github.com/RealZimboGuy/courseflow/internal/util"
)

type OrganizationsController struct {
	AuthController
	Organizations OrganizationService
}

func NewOrganizationsController(organizations OrganizationService, auth AuthController) *OrganizationsController {
	return &OrganizationsController{Organizations: organizations, AuthController: auth}
}

func (c *OrganizationsController) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := c.Organizations.GetOrganization(r.Context(), r.PathValue("id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, org)
}

func (c *OrganizationsController) handlePause(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	changed, err := c.Organizations.PauseOrganization(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeOrganizationActions(w, id, changed)
}

func (c *OrganizationsController) handleResume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	changed, err := c.Organizations.ResumeOrganization(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeOrganizationActions(w, id, changed)
}

func writeOrganizationActions(w http.ResponseWriter, id string, changed []int64) {
	if changed == nil {
		changed = []int64{}
	}
	util.WriteJSONResponse(w, http.StatusOK, models.OrganizationActionsResponse{OrganizationID: id, Actions: changed})
}

func (c *OrganizationsController) handleSetTimezone(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[models.SetTimezoneRequest](r)
	if err != nil {
		badRequest(w, r, "invalid JSON payload")
		return
	}
	id := r.PathValue("id")
	if err := c.Organizations.SetTimezone(r.Context(), id, req.Timezone); err != nil {
		handleServiceError(w, r, err)
		return
	}
	org, err := c.Organizations.GetOrganization(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, org)
}
