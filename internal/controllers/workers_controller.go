package controllers

import (
	"net/http"

	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/internal/util"
)

type WorkersController struct {
	AuthController
	Workers WorkerService
}

func NewWorkersController(workers WorkerService, auth AuthController) *WorkersController {
	return &WorkersController{Workers: workers, AuthController: auth}
}

func (c *WorkersController) handleGetWorkers(w http.ResponseWriter, r *http.Request) {
	results, err := c.Workers.Workers(r.Context(), 20)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if results == nil {
		results = []*domain.Worker{}
	}
	util.WriteJSONResponse(w, http.StatusOK, results)
}
