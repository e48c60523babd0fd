// Package audit defines the DecisionAuditRecord, the immutable output of one
// verification, and its single canonical JSON form. Sinks and exporters read
// records through Marshal, Unmarshal and Rows only.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/boardcheck/internal/domain/model"
)

// Reason explains a non-verified outcome.
type Reason string

// Decision reasons.
const (
	ReasonInsufficientData Reason = "insufficient_data"
	ReasonModelsDisagree   Reason = "models_disagree"
	ReasonBelowConsensus   Reason = "below_minimum_consensus"
	ReasonWeakMatch        Reason = "weak_match"
	ReasonBelowMatch       Reason = "below_match_threshold"
)

// ModelResult is one model's report plus how the engine treated it.
type ModelResult struct {
	model.ModelScoreReport

	CalibratedScore float64  `json:"calibrated_score"`
	Weight          float64  `json:"weight"`
	Threshold       float64  `json:"threshold"`
	VotesMatch      bool     `json:"votes_match"`
	Counted         bool     `json:"counted"`
	TopKGap         *float64 `json:"top_k_gap"`
}

// Record is the DecisionAuditRecord for one boarding event.
type Record struct {
	RecordID  string    `json:"record_id,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
	BusID     string    `json:"bus_id,omitempty"`
	KioskID   string    `json:"kiosk_id,omitempty"`
	DecidedAt time.Time `json:"decided_at,omitzero"`

	VerificationStatus  model.VerificationStatus `json:"verification_status"`
	ConfidenceLevel     model.ConfidenceLevel    `json:"confidence_level"`
	StudentID           string                   `json:"student_id,omitempty"`
	CombinedScore       float64                  `json:"combined_score"`
	ConsensusCount      int                      `json:"consensus_count"`
	ConfigVersion       int                      `json:"config_version"`
	PerModelResults     []ModelResult            `json:"per_model_results"`
	UsedFastPath        bool                     `json:"used_fast_path"`
	EscalatedToEnsemble bool                     `json:"escalated_to_ensemble"`
	Reason              Reason                   `json:"reason,omitempty"`
}

// Accepted reports whether the student may board without manual action.
func (r Record) Accepted() bool {
	return r.VerificationStatus == model.StatusVerified
}

// Marshal encodes r in the canonical form.
func Marshal(r Record) ([]byte, error) {
	if r.PerModelResults == nil {
		r.PerModelResults = []ModelResult{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal audit record: %w", err)
	}
	return b, nil
}

// Unmarshal decodes the canonical form, rejecting unknown fields.
func Unmarshal(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var r Record
	if err := dec.Decode(&r); err != nil {
		return Record{}, fmt.Errorf("unmarshal audit record: %w", err)
	}
	return r, nil
}
