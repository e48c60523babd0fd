// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// MaxTopCandidates bounds ModelScoreReport.Top5Scores.
const MaxTopCandidates = 5

// scoreTolerance absorbs float noise when comparing raw_score with the top candidate.
const scoreTolerance = 1e-9

// Well-known model names. The engine treats names as opaque; these exist for
// defaults and tests.
const (
	MobileFaceNet = "mobilefacenet"
	ArcFaceInt8   = "arcface_int8"
	AdaFace       = "adaface"
)

// Candidate is one enrolled student scored by a model.
type Candidate struct {
	StudentID string  `json:"student_id"`
	Score     float64 `json:"score"`
}

// ModelScoreReport is one model's opinion on one boarding event.
type ModelScoreReport struct {
	ModelName          string      `json:"model_name"`
	PredictedStudentID string      `json:"predicted_student_id,omitempty"`
	RawScore           float64     `json:"raw_score"`
	Top5Scores         []Candidate `json:"top5_scores,omitempty"`
}

// NewReport builds a report from unordered candidates: it sorts them by score
// (desc, then student id asc), keeps the best MaxTopCandidates and predicts
// the top one. Candidates scoring below minScore are dropped first; when none
// remain the report carries no prediction.
func NewReport(modelName string, candidates []Candidate, minScore float64) ModelScoreReport {
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.StudentID == "" || c.Score < minScore {
			continue
		}
		kept = append(kept, c)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].StudentID < kept[j].StudentID
	})
	if len(kept) > MaxTopCandidates {
		kept = kept[:MaxTopCandidates]
	}
	r := ModelScoreReport{ModelName: modelName, Top5Scores: kept}
	if len(kept) > 0 {
		r.PredictedStudentID = kept[0].StudentID
		r.RawScore = kept[0].Score
	}
	return r
}

// HasPrediction reports whether the model named a best-matching student.
func (r ModelScoreReport) HasPrediction() bool {
	return r.PredictedStudentID != ""
}

// TopKGap returns the score gap between the best and second-best candidate.
// ok is false when fewer than two candidates exist.
func (r ModelScoreReport) TopKGap() (gap float64, ok bool) {
	if len(r.Top5Scores) < 2 {
		return 0, false
	}
	return r.Top5Scores[0].Score - r.Top5Scores[1].Score, true
}

// Validate checks the structural invariants of a report received from an
// external score source.
func (r ModelScoreReport) Validate() error {
	if strings.TrimSpace(r.ModelName) == "" {
		return fmt.Errorf("%w: model_name is empty", ErrMalformedReport)
	}
	if math.IsNaN(r.RawScore) || math.IsInf(r.RawScore, 0) {
		return fmt.Errorf("%w: raw_score is not finite", ErrMalformedReport)
	}
	if len(r.Top5Scores) > MaxTopCandidates {
		return fmt.Errorf("%w: %d candidates exceed the limit of %d", ErrMalformedReport, len(r.Top5Scores), MaxTopCandidates)
	}
	for i := 1; i < len(r.Top5Scores); i++ {
		if r.Top5Scores[i].Score > r.Top5Scores[i-1].Score {
			return fmt.Errorf("%w: top5_scores not sorted descending at %d", ErrMalformedReport, i)
		}
	}
	if r.HasPrediction() && len(r.Top5Scores) > 0 {
		top := r.Top5Scores[0]
		if top.StudentID != r.PredictedStudentID || math.Abs(top.Score-r.RawScore) > scoreTolerance {
			return fmt.Errorf("%w: raw_score does not match the top candidate", ErrMalformedReport)
		}
	}
	return nil
}

// BoardingEvent is one face capture at a bus kiosk awaiting verification.
type BoardingEvent struct {
	EventID    string    `json:"event_id"`
	BusID      string    `json:"bus_id,omitempty"`
	KioskID    string    `json:"kiosk_id,omitempty"`
	Image      []byte    `json:"image"`
	CapturedAt time.Time `json:"captured_at"`
}
