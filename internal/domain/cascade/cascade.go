// Package cascade decides whether the fast model's report alone settles a
// boarding event or whether the full ensemble must run.
package cascade

import (
	"fmt"

	"github.com/okian/boardcheck/internal/domain/audit"
	"github.com/okian/boardcheck/internal/domain/consensus"
	"github.com/okian/boardcheck/internal/domain/guard"
	"github.com/okian/boardcheck/internal/domain/mlconfig"
	"github.com/okian/boardcheck/internal/domain/model"
)

// Escalation names why the fast path was not taken.
type Escalation string

// Escalation reasons.
const (
	EscalateDisabled      Escalation = "cascade_disabled"
	EscalateNoReport      Escalation = "no_fast_report"
	EscalateWrongModel    Escalation = "not_fast_model"
	EscalateNoPrediction  Escalation = "no_prediction"
	EscalateNotConfident  Escalation = "not_high_confidence"
	EscalateAmbiguous     Escalation = "ambiguous_match"
	EscalateGuardRejected Escalation = "guard_rejected"
	EscalateGuardError    Escalation = "guard_error"
)

// Decision is the cascade outcome. Record is set only when ShortCircuit is
// true; it then carries UsedFastPath=true and needs no further models.
type Decision struct {
	ShortCircuit bool
	Record       audit.Record
	Escalation   Escalation
}

// Controller evaluates the fast path. Guards are compiled once per distinct
// expression and shared across calls.
type Controller struct {
	guards *guard.Cache
}

// NewController returns a Controller with an empty guard cache.
func NewController() *Controller {
	return &Controller{guards: guard.NewCache()}
}

// Evaluate checks fast against cfg.Cascade. It short-circuits only when the
// report comes from the configured fast model, names a student, decides
// VERIFIED/HIGH on its own, its top-k gap is defined and strictly above the
// ambiguity threshold, and the optional guard holds. Any doubt escalates.
//
// The error is non-nil only when the guard failed to compile or evaluate; the
// returned Decision then escalates and remains usable.
func (c *Controller) Evaluate(fast *model.ModelScoreReport, cfg mlconfig.ModelConfig) (Decision, error) {
	policy := cfg.Cascade
	switch {
	case !policy.Enabled:
		return escalate(EscalateDisabled), nil
	case fast == nil:
		return escalate(EscalateNoReport), nil
	case fast.ModelName != policy.FastModel:
		return escalate(EscalateWrongModel), nil
	case !fast.HasPrediction():
		return escalate(EscalateNoPrediction), nil
	}

	rec, err := consensus.DecideSingle(*fast, cfg)
	if err != nil || rec.VerificationStatus != model.StatusVerified ||
		rec.ConfidenceLevel != model.ConfidenceHigh || rec.ConsensusCount != 1 {
		return escalate(EscalateNotConfident), nil
	}

	gap, ok := fast.TopKGap()
	if !ok || gap <= policy.AmbiguityThreshold {
		return escalate(EscalateAmbiguous), nil
	}

	if policy.Guard != "" {
		g, err := c.guards.Get(policy.Guard)
		if err != nil {
			return escalate(EscalateGuardError), fmt.Errorf("fast path guard: %w", err)
		}
		allowed, err := g.Allow(guard.Input{
			Model:      fast.ModelName,
			Student:    fast.PredictedStudentID,
			Score:      fast.RawScore,
			Calibrated: rec.PerModelResults[0].CalibratedScore,
			Gap:        gap,
			HasGap:     ok,
		})
		if err != nil {
			return escalate(EscalateGuardError), fmt.Errorf("fast path guard: %w", err)
		}
		if !allowed {
			return escalate(EscalateGuardRejected), nil
		}
	}

	rec.UsedFastPath = true
	rec.EscalatedToEnsemble = false
	return Decision{ShortCircuit: true, Record: rec}, nil
}

func escalate(reason Escalation) Decision {
	return Decision{Escalation: reason}
}
