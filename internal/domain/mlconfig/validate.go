package mlconfig

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/okian/boardcheck/internal/domain/guard"
)

const (
	weightSumTolerance = 0.001
	minConsensusFloor  = 1
	minConsensusCeil   = 3
)

// Validate checks every documented range and invariant. It never clamps; all
// violations are reported together as *ValidationError values joined into
// one error that matches ErrInvalidConfig.
func (c ModelConfig) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if len(c.Models) == 0 {
		add("models", "at least one model is required")
	}

	names := make([]string, 0, len(c.Models))
	for name := range c.Models {
		names = append(names, name)
	}
	sort.Strings(names)

	var weightSum float64
	enabled := 0
	for _, name := range names {
		p := c.Models[name]
		field := "models." + name
		if strings.TrimSpace(name) == "" {
			add("models", "model name is empty")
		}
		if !inUnit(p.Weight) {
			add(field+".weight", "%v outside [0,1]", p.Weight)
		}
		if !inUnit(p.Threshold) {
			add(field+".threshold", "%v outside [0,1]", p.Threshold)
		}
		ts := p.TemperatureScaling
		if ts.Enabled && !(ts.Temperature > 0) {
			add(field+".temperature_scaling.temperature", "must be > 0 when enabled, got %v", ts.Temperature)
		}
		if math.IsNaN(ts.Shift) || math.IsInf(ts.Shift, 0) {
			add(field+".temperature_scaling.shift", "must be finite")
		}
		if p.Enabled {
			enabled++
			weightSum += p.Weight
		}
	}
	if len(c.Models) > 0 && enabled == 0 {
		add("models", "at least one model must be enabled")
	}
	if enabled > 0 && math.Abs(weightSum-1) > weightSumTolerance {
		add("models", "enabled weights sum to %.4f, want 1.0", weightSum)
	}

	t := c.Thresholds
	if !inUnit(t.HighConfidence) {
		add("combined_thresholds.high_confidence", "%v outside [0,1]", t.HighConfidence)
	}
	if !inUnit(t.MediumConfidence) {
		add("combined_thresholds.medium_confidence", "%v outside [0,1]", t.MediumConfidence)
	}
	if !inUnit(t.MatchThreshold) {
		add("combined_thresholds.match_threshold", "%v outside [0,1]", t.MatchThreshold)
	}
	if !(t.HighConfidence >= t.MediumConfidence && t.MediumConfidence >= t.MatchThreshold) {
		add("combined_thresholds", "require high >= medium >= match, got %v/%v/%v",
			t.HighConfidence, t.MediumConfidence, t.MatchThreshold)
	}

	if c.Voting.MinimumConsensus < minConsensusFloor || c.Voting.MinimumConsensus > minConsensusCeil {
		add("voting.minimum_consensus", "%d outside [%d,%d]", c.Voting.MinimumConsensus, minConsensusFloor, minConsensusCeil)
	}

	errs = append(errs, c.validateCascade()...)

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func (c ModelConfig) validateCascade() []error {
	cs := c.Cascade
	var errs []error
	if !inUnit(cs.AmbiguityThreshold) {
		errs = append(errs, &ValidationError{
			Field:  "cascade.ambiguity_threshold",
			Reason: fmt.Sprintf("%v outside [0,1]", cs.AmbiguityThreshold),
		})
	}
	if cs.Enabled {
		if p, ok := c.Models[cs.FastModel]; !ok || !p.Enabled {
			errs = append(errs, &ValidationError{
				Field:  "cascade.fast_model",
				Reason: fmt.Sprintf("%q is not an enabled model", cs.FastModel),
			})
		}
	}
	if strings.TrimSpace(cs.Guard) != "" {
		if _, err := guard.Compile(cs.Guard); err != nil {
			errs = append(errs, &ValidationError{Field: "cascade.guard", Reason: err.Error()})
		}
	}
	return errs
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
