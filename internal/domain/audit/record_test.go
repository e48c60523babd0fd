package audit_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/boardcheck/internal/domain/audit"
	"github.com/okian/boardcheck/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func sampleRecord() audit.Record {
	gap := 0.3
	return audit.Record{
		RecordID:           "rec-1",
		EventID:            "evt-1",
		BusID:              "bus-12",
		DecidedAt:          time.Date(2026, 2, 3, 7, 15, 0, 0, time.UTC),
		VerificationStatus: model.StatusVerified,
		ConfidenceLevel:    model.ConfidenceHigh,
		StudentID:          "s-1",
		CombinedScore:      0.92,
		ConsensusCount:     1,
		ConfigVersion:      3,
		UsedFastPath:       true,
		PerModelResults: []audit.ModelResult{{
			ModelScoreReport: model.ModelScoreReport{
				ModelName:          model.MobileFaceNet,
				PredictedStudentID: "s-1",
				RawScore:           0.92,
				Top5Scores:         []model.Candidate{{StudentID: "s-1", Score: 0.92}, {StudentID: "s-2", Score: 0.62}},
			},
			CalibratedScore: 0.92,
			Weight:          0.5,
			Threshold:       0.45,
			VotesMatch:      true,
			Counted:         true,
			TopKGap:         &gap,
		}},
	}
}

func TestMarshal(t *testing.T) {
	Convey("Given an audit record", t, func() {
		rec := sampleRecord()

		Convey("When it is marshaled", func() {
			data, err := audit.Marshal(rec)
			So(err, ShouldBeNil)

			var generic map[string]any
			So(json.Unmarshal(data, &generic), ShouldBeNil)

			Convey("Then the canonical field names should be used", func() {
				for _, key := range []string{
					"verification_status", "confidence_level", "combined_score", "consensus_count",
					"config_version", "per_model_results", "used_fast_path", "escalated_to_ensemble",
				} {
					So(generic, ShouldContainKey, key)
				}
				results := generic["per_model_results"].([]any)
				first := results[0].(map[string]any)
				for _, key := range []string{"model_name", "predicted_student_id", "raw_score", "top5_scores", "calibrated_score", "votes_match", "top_k_gap"} {
					So(first, ShouldContainKey, key)
				}
			})

			Convey("Then decoding should give the same record back", func() {
				back, err := audit.Unmarshal(data)
				So(err, ShouldBeNil)
				So(back, ShouldResemble, rec)
			})
		})

		Convey("When a record has no model results", func() {
			data, err := audit.Marshal(audit.Record{VerificationStatus: model.StatusPending, ConfidenceLevel: model.ConfidenceNone})

			Convey("Then per_model_results should be an empty list and decided_at omitted", func() {
				So(err, ShouldBeNil)
				So(string(data), ShouldContainSubstring, `"per_model_results":[]`)
				So(string(data), ShouldNotContainSubstring, "decided_at")
			})
		})

		Convey("When decoding a payload with foreign field names", func() {
			_, err := audit.Unmarshal([]byte(`{"status":"VERIFIED","model_results":{}}`))

			Convey("Then it should be rejected", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestRows(t *testing.T) {
	Convey("Given a record with two model results", t, func() {
		rec := sampleRecord()
		rec.PerModelResults = append(rec.PerModelResults, audit.ModelResult{
			ModelScoreReport: model.ModelScoreReport{ModelName: model.ArcFaceInt8},
		})

		Convey("When flattening", func() {
			rows := audit.Rows(rec)

			Convey("Then there should be one row per model carrying record fields", func() {
				So(len(rows), ShouldEqual, 2)
				So(rows[0].ModelName, ShouldEqual, model.MobileFaceNet)
				So(rows[1].ModelName, ShouldEqual, model.ArcFaceInt8)
				for _, r := range rows {
					So(r.RecordID, ShouldEqual, "rec-1")
					So(r.ConfigVersion, ShouldEqual, 3)
					So(r.VerificationStatus, ShouldEqual, "VERIFIED")
					So(r.UsedFastPath, ShouldBeTrue)
				}
				So(*rows[0].TopKGap, ShouldEqual, 0.3)
				So(rows[1].TopKGap, ShouldBeNil)
			})
		})
	})
}
