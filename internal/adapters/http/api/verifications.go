package api

import (
	"context"
	"net/http"

	"github.com/okian/boardcheck/internal/domain/audit"
	"github.com/okian/boardcheck/internal/domain/model"
)

// VerificationDependencies defines what synchronous verification needs.
type VerificationDependencies interface {
	Verify(ctx context.Context, event model.BoardingEvent) (audit.Record, error)
}

// VerificationsHandler handles POST /verifications.
type VerificationsHandler struct {
	deps VerificationDependencies
}

// NewVerificationsHandler creates a new verifications handler.
func NewVerificationsHandler(deps VerificationDependencies) *VerificationsHandler {
	return &VerificationsHandler{deps: deps}
}

// HandlePostVerification decides the event inline and returns the audit record.
func (h *VerificationsHandler) HandlePostVerification(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_verification"
	event, err := decodeBoarding(w, r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	rec, err := h.deps.Verify(r.Context(), event)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeRecord(w, http.StatusOK, rec)
}
