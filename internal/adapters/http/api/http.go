// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/boardcheck/internal/adapters/auditsink"
	"github.com/okian/boardcheck/internal/adapters/mq/queue"
	"github.com/okian/boardcheck/internal/domain/audit"
	"github.com/okian/boardcheck/internal/domain/mlconfig"
	"github.com/okian/boardcheck/internal/domain/model"
)

// maxBodyBytes bounds request bodies; a kiosk capture is well under this.
const maxBodyBytes = 8 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Verify decides an event synchronously and returns the persisted record.
	Verify(ctx context.Context, event model.BoardingEvent) (audit.Record, error)
	// Enqueue accepts an event for async verification. duplicate is true
	// for an event id already accepted.
	Enqueue(ctx context.Context, event model.BoardingEvent) (duplicate bool, err error)
	GetDecision(ctx context.Context, recordID string) (audit.Record, error)

	ActiveConfig(ctx context.Context) (mlconfig.ModelConfig, error)
	Config(ctx context.Context, version int) (mlconfig.ModelConfig, error)
	Configs(ctx context.Context) ([]mlconfig.ModelConfig, error)
	CreateConfig(ctx context.Context, draft mlconfig.ModelConfig) (mlconfig.ModelConfig, error)
	DuplicateConfig(ctx context.Context, version int, description string) (mlconfig.ModelConfig, error)
	ActivateConfig(ctx context.Context, version int) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler        *HealthHandler
	statsHandler         *StatsHandler
	eventsHandler        *EventsHandler
	verificationsHandler *VerificationsHandler
	decisionsHandler     *DecisionsHandler
	configsHandler       *ConfigsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:        NewHealthHandler(),
		statsHandler:         NewStatsHandler(statsProvider),
		eventsHandler:        NewEventsHandler(deps),
		verificationsHandler: NewVerificationsHandler(deps),
		decisionsHandler:     NewDecisionsHandler(deps),
		configsHandler:       NewConfigsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /verifications", MetricsMiddleware(s.verificationsHandler.HandlePostVerification, "verifications"))
	mux.HandleFunc("POST /events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("GET /decisions/{id}", MetricsMiddleware(s.decisionsHandler.HandleGetDecision, "decisions"))

	mux.HandleFunc("GET /configs", MetricsMiddleware(s.configsHandler.HandleList, "configs"))
	mux.HandleFunc("POST /configs", MetricsMiddleware(s.configsHandler.HandleCreate, "configs"))
	mux.HandleFunc("GET /configs/active", MetricsMiddleware(s.configsHandler.HandleGetActive, "configs_active"))
	mux.HandleFunc("GET /configs/{version}", MetricsMiddleware(s.configsHandler.HandleGet, "configs_version"))
	mux.HandleFunc("POST /configs/{version}/activate", MetricsMiddleware(s.configsHandler.HandleActivate, "configs_activate"))
	mux.HandleFunc("POST /configs/{version}/duplicate", MetricsMiddleware(s.configsHandler.HandleDuplicate, "configs_duplicate"))
}

// boardingRequest mirrors the OpenAPI schema shared by POST /verifications
// and POST /events. image is base64 in JSON.
type boardingRequest struct {
	EventID    string `json:"event_id"`
	BusID      string `json:"bus_id"`
	KioskID    string `json:"kiosk_id"`
	Image      []byte `json:"image"`
	CapturedAt string `json:"captured_at"`
}

func (b boardingRequest) event() (model.BoardingEvent, error) {
	switch {
	case strings.TrimSpace(b.EventID) == "":
		return model.BoardingEvent{}, errors.New("missing event_id")
	case strings.TrimSpace(b.BusID) == "":
		return model.BoardingEvent{}, errors.New("missing bus_id")
	case len(b.Image) == 0:
		return model.BoardingEvent{}, errors.New("missing image")
	}

	captured := time.Now().UTC()
	if b.CapturedAt != "" {
		ts, err := time.Parse(time.RFC3339, b.CapturedAt)
		if err != nil {
			return model.BoardingEvent{}, errors.New("invalid captured_at; must be RFC3339")
		}
		captured = ts
	}

	return model.BoardingEvent{
		EventID:    b.EventID,
		BusID:      b.BusID,
		KioskID:    b.KioskID,
		Image:      b.Image,
		CapturedAt: captured,
	}, nil
}

func decodeBoarding(w http.ResponseWriter, r *http.Request) (model.BoardingEvent, error) {
	var req boardingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return model.BoardingEvent{}, err
	}
	return req.event()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func pathVersion(r *http.Request) (int, error) {
	v, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid version %q", r.PathValue("version"))
	}
	return v, nil
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRecord emits the canonical record encoding rather than re-encoding
// the struct here.
func writeRecord(w http.ResponseWriter, status int, rec audit.Record) {
	body, err := audit.Marshal(rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure translates domain errors into HTTP statuses.
func writeFailure(w http.ResponseWriter, err error) {
	var verr *mlconfig.ValidationError
	switch {
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.As(err, &verr), errors.Is(err, mlconfig.ErrInvalidConfig):
		writeError(w, http.StatusUnprocessableEntity, "invalid_config", err)
	case errors.Is(err, ErrNotFound), errors.Is(err, auditsink.ErrNotFound), errors.Is(err, mlconfig.ErrVersionNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrBackpressure), errors.Is(err, queue.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, queue.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}
