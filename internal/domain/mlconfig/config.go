// Package mlconfig defines the versioned ML decision configuration: per-model
// weights, thresholds and calibration, combined thresholds, voting policy and
// cascade policy. A ModelConfig is a value; once saved under a version it is
// never edited in place. New behaviour is introduced by saving a new version
// and activating it.
package mlconfig

import (
	"sort"
	"time"

	"github.com/okian/boardcheck/internal/domain/calibration"
	"github.com/okian/boardcheck/internal/domain/model"
)

// ModelParams holds the tunables for one model.
type ModelParams struct {
	Weight             float64                       `json:"weight"`
	Threshold          float64                       `json:"threshold"`
	Enabled            bool                          `json:"enabled"`
	TemperatureScaling calibration.TemperatureParams `json:"temperature_scaling"`
}

// CombinedThresholds classify the combined score. All comparisons are inclusive.
type CombinedThresholds struct {
	HighConfidence   float64 `json:"high_confidence"`
	MediumConfidence float64 `json:"medium_confidence"`
	MatchThreshold   float64 `json:"match_threshold"`
}

// VotingPolicy reconciles disagreements between models.
type VotingPolicy struct {
	MinimumConsensus int  `json:"minimum_consensus"`
	RequireAllAgree  bool `json:"require_all_agree"`
	UseWeightedVote  bool `json:"use_weighted_vote"`
}

// CascadePolicy tunes the fast-path check.
type CascadePolicy struct {
	Enabled            bool    `json:"enabled"`
	FastModel          string  `json:"fast_model"`
	AmbiguityThreshold float64 `json:"ambiguity_threshold"`
	// Guard is an optional CEL expression that must hold for a short circuit.
	Guard string `json:"guard,omitempty"`
}

// ModelConfig is one immutable version of the decision parameters.
type ModelConfig struct {
	Version     int                    `json:"version"`
	IsActive    bool                   `json:"is_active"`
	Description string                 `json:"description,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	Models      map[string]ModelParams `json:"models"`
	Thresholds  CombinedThresholds     `json:"combined_thresholds"`
	Voting      VotingPolicy           `json:"voting"`
	Cascade     CascadePolicy          `json:"cascade"`
}

// Model returns the parameters for name and whether they exist.
func (c ModelConfig) Model(name string) (ModelParams, bool) {
	p, ok := c.Models[name]
	return p, ok
}

// EnabledModels returns the enabled model names in lexical order.
func (c ModelConfig) EnabledModels() []string {
	names := make([]string, 0, len(c.Models))
	for name, p := range c.Models {
		if p.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (c ModelConfig) Clone() ModelConfig {
	out := c
	out.Models = make(map[string]ModelParams, len(c.Models))
	for k, v := range c.Models {
		out.Models[k] = v
	}
	return out
}

// Draft returns a copy stripped of its store identity, ready to be saved as a
// new version.
func (c ModelConfig) Draft() ModelConfig {
	out := c.Clone()
	out.Version = 0
	out.IsActive = false
	out.CreatedAt = time.Time{}
	return out
}

// Default is the fallback policy used to bootstrap an empty store: MobileFaceNet
// and ArcFace at equal weight with ArcFace spread by temperature scaling,
// AdaFace present but disabled.
func Default() ModelConfig {
	return ModelConfig{
		Description: "bootstrap default",
		Models: map[string]ModelParams{
			model.MobileFaceNet: {
				Weight:    0.5,
				Threshold: 0.45,
				Enabled:   true,
			},
			model.ArcFaceInt8: {
				Weight:    0.5,
				Threshold: 0.45,
				Enabled:   true,
				TemperatureScaling: calibration.TemperatureParams{
					Enabled:     true,
					Temperature: 3.0,
					Shift:       -0.15,
				},
			},
			model.AdaFace: {
				Weight:    0,
				Threshold: 0.45,
				Enabled:   false,
			},
		},
		Thresholds: CombinedThresholds{
			HighConfidence:   0.60,
			MediumConfidence: 0.45,
			MatchThreshold:   0.35,
		},
		Voting: VotingPolicy{
			MinimumConsensus: 2,
			RequireAllAgree:  true,
			UseWeightedVote:  true,
		},
		Cascade: CascadePolicy{
			Enabled:            true,
			FastModel:          model.MobileFaceNet,
			AmbiguityThreshold: 0.12,
		},
	}
}
