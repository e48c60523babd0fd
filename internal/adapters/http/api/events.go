package api

import (
	"context"
	"net/http"

	"github.com/okian/boardcheck/internal/domain/model"
)

// EventDependencies defines what asynchronous intake needs.
type EventDependencies interface {
	Enqueue(ctx context.Context, event model.BoardingEvent) (duplicate bool, err error)
}

// EventsHandler handles POST /events.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent accepts a boarding event for async verification. A
// repeated event_id is acknowledged as a duplicate; a full queue is 429.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	event, err := decodeBoarding(w, r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	duplicate, err := h.deps.Enqueue(r.Context(), event)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
}
