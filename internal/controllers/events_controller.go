package controllers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/RealZimboGuy/courseflow/internal/events"
	"github.com/RealZimboGuy/courseflow/internal/models"
	"github.com/RealZimboGuy/courseflow/internal/util"
)

// EventsController is the HTTP entry point of the lifecycle event source.
type EventsController struct {
	AuthController
	Publisher EventPublisher
}

func NewEventsController(publisher EventPublisher, auth AuthController) *EventsController {
	return &EventsController{Publisher: publisher, AuthController: auth}
}

func (c *EventsController) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := util.DecodeJSONBody[events.LifecycleEvent](r)
	if err != nil {
		badRequest(w, r, "invalid JSON payload")
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := c.Publisher.PublishLifecycle(r.Context(), ev); err != nil {
		handleServiceError(w, r, err)
		return
	}
	slog.DebugContext(r.Context(), "Lifecycle event accepted", "event_id", ev.ID, "kind", ev.Kind)
	util.WriteJSONResponse(w, http.StatusAccepted, models.PublishEventResponse{ID: ev.ID})
}
