package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/boardcheck/internal/domain/audit"
)

// DecisionDependencies reads persisted audit records.
type DecisionDependencies interface {
	GetDecision(ctx context.Context, recordID string) (audit.Record, error)
}

// DecisionsHandler handles GET /decisions/{id}.
type DecisionsHandler struct {
	deps DecisionDependencies
}

// NewDecisionsHandler creates a new decisions handler.
func NewDecisionsHandler(deps DecisionDependencies) *DecisionsHandler {
	return &DecisionsHandler{deps: deps}
}

// HandleGetDecision returns one audit record by record id.
func (h *DecisionsHandler) HandleGetDecision(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_decision"
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}

	rec, err := h.deps.GetDecision(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeRecord(w, http.StatusOK, rec)
}
