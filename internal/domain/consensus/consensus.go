// Package consensus turns per-model score reports into a single verification
// decision under a ModelConfig. Everything here is a pure function of its
// inputs and safe for concurrent use.
package consensus

import (
	"fmt"
	"sort"

	"github.com/okian/boardcheck/internal/domain/audit"
	"github.com/okian/boardcheck/internal/domain/calibration"
	"github.com/okian/boardcheck/internal/domain/mlconfig"
	"github.com/okian/boardcheck/internal/domain/model"
)

// Decide renders the decision for one boarding event.
//
// Reports from models that are unknown to cfg or disabled in it, and repeated
// reports from a model already seen, are kept in the record with Counted=false
// and take no part in voting or scoring. The leading candidate is the student
// with the most match votes; ties go to the higher summed weighted calibrated
// score, then to the lexically smaller student id.
//
// The returned record carries no identity, timestamp or cascade flags; the
// caller stamps those.
func Decide(reports []model.ModelScoreReport, cfg mlconfig.ModelConfig) (audit.Record, error) {
	return decide(reports, cfg, cfg.Voting)
}

// DecideSingle decides on one report alone, as the cascade fast path does.
// Minimum consensus is treated as one so a lone model can qualify.
func DecideSingle(report model.ModelScoreReport, cfg mlconfig.ModelConfig) (audit.Record, error) {
	voting := cfg.Voting
	voting.MinimumConsensus = 1
	return decide([]model.ModelScoreReport{report}, cfg, voting)
}

// Pending is the record for an event that could not be decided. Whatever
// reports exist are evaluated and kept for review.
func Pending(reports []model.ModelScoreReport, cfg mlconfig.ModelConfig) audit.Record {
	return audit.Record{
		VerificationStatus: model.StatusPending,
		ConfidenceLevel:    model.ConfidenceNone,
		ConfigVersion:      cfg.Version,
		PerModelResults:    evaluate(reports, cfg),
		Reason:             audit.ReasonInsufficientData,
	}
}

type tally struct {
	student  string
	votes    int
	weighted float64
}

func decide(reports []model.ModelScoreReport, cfg mlconfig.ModelConfig, voting mlconfig.VotingPolicy) (audit.Record, error) {
	if len(reports) == 0 {
		return audit.Record{}, fmt.Errorf("%w: no reports", ErrInsufficientData)
	}
	results := evaluate(reports, cfg)

	counted := 0
	for _, r := range results {
		if r.Counted {
			counted++
		}
	}
	if counted == 0 {
		return audit.Record{}, fmt.Errorf("%w: no report from an enabled model", ErrInsufficientData)
	}

	leading := leadingCandidate(results)
	combined := combinedScore(results, leading.student, voting.UseWeightedVote)

	rec := audit.Record{
		CombinedScore:   combined,
		ConsensusCount:  leading.votes,
		ConfigVersion:   cfg.Version,
		PerModelResults: results,
	}

	t := cfg.Thresholds
	switch {
	case voting.RequireAllAgree && leading.votes != counted:
		rec.VerificationStatus, rec.ConfidenceLevel, rec.Reason = model.StatusRejected, model.ConfidenceNone, audit.ReasonModelsDisagree
	case leading.votes < voting.MinimumConsensus:
		rec.VerificationStatus, rec.ConfidenceLevel, rec.Reason = model.StatusRejected, model.ConfidenceNone, audit.ReasonBelowConsensus
	case combined >= t.HighConfidence:
		rec.VerificationStatus, rec.ConfidenceLevel = model.StatusVerified, model.ConfidenceHigh
	case combined >= t.MediumConfidence:
		rec.VerificationStatus, rec.ConfidenceLevel = model.StatusVerified, model.ConfidenceMedium
	case combined >= t.MatchThreshold:
		rec.VerificationStatus, rec.ConfidenceLevel, rec.Reason = model.StatusFlagged, model.ConfidenceLow, audit.ReasonWeakMatch
	default:
		rec.VerificationStatus, rec.ConfidenceLevel, rec.Reason = model.StatusRejected, model.ConfidenceNone, audit.ReasonBelowMatch
	}
	if rec.VerificationStatus == model.StatusVerified || rec.VerificationStatus == model.StatusFlagged {
		rec.StudentID = leading.student
	}
	return rec, nil
}

func evaluate(reports []model.ModelScoreReport, cfg mlconfig.ModelConfig) []audit.ModelResult {
	results := make([]audit.ModelResult, 0, len(reports))
	seen := make(map[string]bool, len(reports))
	for _, r := range reports {
		params, known := cfg.Model(r.ModelName)
		res := audit.ModelResult{
			ModelScoreReport: r,
			CalibratedScore:  calibration.Score(r.RawScore, params.TemperatureScaling),
			Weight:           params.Weight,
			Threshold:        params.Threshold,
			Counted:          known && params.Enabled && !seen[r.ModelName],
		}
		if gap, ok := r.TopKGap(); ok {
			res.TopKGap = &gap
		}
		if res.Counted {
			seen[r.ModelName] = true
			res.VotesMatch = r.HasPrediction() && res.CalibratedScore >= params.Threshold
		}
		results = append(results, res)
	}
	return results
}

// leadingCandidate ranks students named by counted reports. A report without
// a prediction never leads. The zero tally means nobody was named.
func leadingCandidate(results []audit.ModelResult) tally {
	byStudent := make(map[string]*tally)
	for _, r := range results {
		if !r.Counted || !r.HasPrediction() {
			continue
		}
		t, ok := byStudent[r.PredictedStudentID]
		if !ok {
			t = &tally{student: r.PredictedStudentID}
			byStudent[r.PredictedStudentID] = t
		}
		t.weighted += r.Weight * r.CalibratedScore
		if r.VotesMatch {
			t.votes++
		}
	}
	if len(byStudent) == 0 {
		return tally{}
	}
	ranked := make([]tally, 0, len(byStudent))
	for _, t := range byStudent {
		ranked = append(ranked, *t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.votes != b.votes {
			return a.votes > b.votes
		}
		if a.weighted != b.weighted {
			return a.weighted > b.weighted
		}
		return a.student < b.student
	})
	return ranked[0]
}

// combinedScore implements both vote modes.
//
// Weighted: sum(weight*calibrated) over counted reports divided by the summed
// weight of counted reports, so models that did not report never dilute the
// score. If every counted weight is zero the plain mean is used.
//
// Equal: mean calibrated score of the reports that voted match for leading,
// or of the reports naming leading when none voted match.
func combinedScore(results []audit.ModelResult, leading string, weighted bool) float64 {
	if weighted {
		var num, den, sum float64
		n := 0
		for _, r := range results {
			if !r.Counted {
				continue
			}
			num += r.Weight * r.CalibratedScore
			den += r.Weight
			sum += r.CalibratedScore
			n++
		}
		if den > 0 {
			return unit(num / den)
		}
		if n == 0 {
			return 0
		}
		return unit(sum / float64(n))
	}

	if leading == "" {
		return 0
	}
	mean := func(match func(audit.ModelResult) bool) (float64, bool) {
		var sum float64
		n := 0
		for _, r := range results {
			if r.Counted && match(r) {
				sum += r.CalibratedScore
				n++
			}
		}
		if n == 0 {
			return 0, false
		}
		return unit(sum / float64(n)), true
	}
	if v, ok := mean(func(r audit.ModelResult) bool { return r.VotesMatch && r.PredictedStudentID == leading }); ok {
		return v
	}
	v, _ := mean(func(r audit.ModelResult) bool { return r.PredictedStudentID == leading })
	return v
}

func unit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
