package audit

import "time"

// Row is one per-model line of a record, flattened for analytics tables and
// warehouse exports. Record-level fields repeat on every row.
type Row struct {
	RecordID            string    `json:"record_id"`
	EventID             string    `json:"event_id"`
	BusID               string    `json:"bus_id,omitempty"`
	KioskID             string    `json:"kiosk_id,omitempty"`
	DecidedAt           time.Time `json:"decided_at"`
	ConfigVersion       int       `json:"config_version"`
	VerificationStatus  string    `json:"verification_status"`
	ConfidenceLevel     string    `json:"confidence_level"`
	StudentID           string    `json:"student_id,omitempty"`
	CombinedScore       float64   `json:"combined_score"`
	ConsensusCount      int       `json:"consensus_count"`
	UsedFastPath        bool      `json:"used_fast_path"`
	EscalatedToEnsemble bool      `json:"escalated_to_ensemble"`

	ModelName          string   `json:"model_name"`
	PredictedStudentID string   `json:"predicted_student_id,omitempty"`
	RawScore           float64  `json:"raw_score"`
	CalibratedScore    float64  `json:"calibrated_score"`
	Weight             float64  `json:"weight"`
	VotesMatch         bool     `json:"votes_match"`
	Counted            bool     `json:"counted"`
	TopKGap            *float64 `json:"top_k_gap"`
}

// Rows flattens r into one row per model result, in result order.
func Rows(r Record) []Row {
	rows := make([]Row, 0, len(r.PerModelResults))
	for _, m := range r.PerModelResults {
		rows = append(rows, Row{
			RecordID:            r.RecordID,
			EventID:             r.EventID,
			BusID:               r.BusID,
			KioskID:             r.KioskID,
			DecidedAt:           r.DecidedAt,
			ConfigVersion:       r.ConfigVersion,
			VerificationStatus:  string(r.VerificationStatus),
			ConfidenceLevel:     string(r.ConfidenceLevel),
			StudentID:           r.StudentID,
			CombinedScore:       r.CombinedScore,
			ConsensusCount:      r.ConsensusCount,
			UsedFastPath:        r.UsedFastPath,
			EscalatedToEnsemble: r.EscalatedToEnsemble,
			ModelName:           m.ModelName,
			PredictedStudentID:  m.PredictedStudentID,
			RawScore:            m.RawScore,
			CalibratedScore:     m.CalibratedScore,
			Weight:              m.Weight,
			VotesMatch:          m.VotesMatch,
			Counted:             m.Counted,
			TopKGap:             m.TopKGap,
		})
	}
	return rows
}
