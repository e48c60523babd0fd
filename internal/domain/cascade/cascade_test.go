package cascade_test

import (
	"errors"
	"testing"

	"github.com/okian/boardcheck/internal/domain/cascade"
	"github.com/okian/boardcheck/internal/domain/guard"
	"github.com/okian/boardcheck/internal/domain/mlconfig"
	"github.com/okian/boardcheck/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func fastReport(score, second float64) *model.ModelScoreReport {
	r := model.NewReport(model.MobileFaceNet, []model.Candidate{
		{StudentID: "s-x", Score: score},
		{StudentID: "s-y", Score: second},
	}, 0)
	return &r
}

func TestEvaluate(t *testing.T) {
	Convey("Given the default config", t, func() {
		cfg := mlconfig.Default()
		cfg.Version = 4
		c := cascade.NewController()

		Convey("When the fast model is confident and unambiguous", func() {
			d, err := c.Evaluate(fastReport(0.92, 0.62), cfg)

			Convey("Then it should short-circuit as verified/high", func() {
				So(err, ShouldBeNil)
				So(d.ShortCircuit, ShouldBeTrue)
				So(d.Record.UsedFastPath, ShouldBeTrue)
				So(d.Record.EscalatedToEnsemble, ShouldBeFalse)
				So(d.Record.VerificationStatus, ShouldEqual, model.StatusVerified)
				So(d.Record.ConfidenceLevel, ShouldEqual, model.ConfidenceHigh)
				So(d.Record.StudentID, ShouldEqual, "s-x")
				So(d.Record.ConsensusCount, ShouldEqual, 1)
				So(d.Record.ConfigVersion, ShouldEqual, 4)
				So(len(d.Record.PerModelResults), ShouldEqual, 1)
			})
		})

		Convey("When the match is ambiguous", func() {
			d, err := c.Evaluate(fastReport(0.92, 0.87), cfg)

			Convey("Then the ensemble must run even though the score is high", func() {
				So(err, ShouldBeNil)
				So(d.ShortCircuit, ShouldBeFalse)
				So(d.Escalation, ShouldEqual, cascade.EscalateAmbiguous)
			})
		})

		Convey("When the gap equals the ambiguity threshold", func() {
			r := fastReport(0.875, 0.75)
			cfg.Cascade.AmbiguityThreshold = 0.125

			Convey("Then it should escalate because the gap must be strictly above", func() {
				d, _ := c.Evaluate(r, cfg)
				So(d.ShortCircuit, ShouldBeFalse)
				So(d.Escalation, ShouldEqual, cascade.EscalateAmbiguous)
			})
		})

		Convey("When only one candidate exists", func() {
			r := model.NewReport(model.MobileFaceNet, []model.Candidate{{StudentID: "s-x", Score: 0.95}}, 0)
			d, _ := c.Evaluate(&r, cfg)

			Convey("Then the undefined gap should escalate", func() {
				So(d.ShortCircuit, ShouldBeFalse)
				So(d.Escalation, ShouldEqual, cascade.EscalateAmbiguous)
			})
		})

		Convey("When the fast model is not confident enough", func() {
			d, _ := c.Evaluate(fastReport(0.55, 0.10), cfg)

			Convey("Then it should escalate", func() {
				So(d.ShortCircuit, ShouldBeFalse)
				So(d.Escalation, ShouldEqual, cascade.EscalateNotConfident)
			})
		})

		Convey("When the fast report is absent or scoreless", func() {
			none, _ := c.Evaluate(nil, cfg)
			empty := model.NewReport(model.MobileFaceNet, nil, 0)
			noFace, _ := c.Evaluate(&empty, cfg)

			Convey("Then it should never short-circuit", func() {
				So(none.ShortCircuit, ShouldBeFalse)
				So(none.Escalation, ShouldEqual, cascade.EscalateNoReport)
				So(noFace.ShortCircuit, ShouldBeFalse)
				So(noFace.Escalation, ShouldEqual, cascade.EscalateNoPrediction)
			})
		})

		Convey("When the report is from another model", func() {
			r := fastReport(0.92, 0.2)
			r.ModelName = model.ArcFaceInt8
			d, _ := c.Evaluate(r, cfg)

			Convey("Then it should escalate", func() {
				So(d.Escalation, ShouldEqual, cascade.EscalateWrongModel)
			})
		})

		Convey("When the cascade is disabled", func() {
			cfg.Cascade.Enabled = false
			d, _ := c.Evaluate(fastReport(0.99, 0.1), cfg)

			Convey("Then it should escalate", func() {
				So(d.ShortCircuit, ShouldBeFalse)
				So(d.Escalation, ShouldEqual, cascade.EscalateDisabled)
			})
		})

		Convey("When a guard is configured", func() {
			cfg.Cascade.Guard = "report.gap > 0.4"

			Convey("Then a failing guard should escalate", func() {
				d, err := c.Evaluate(fastReport(0.92, 0.62), cfg)
				So(err, ShouldBeNil)
				So(d.ShortCircuit, ShouldBeFalse)
				So(d.Escalation, ShouldEqual, cascade.EscalateGuardRejected)
			})

			Convey("Then a passing guard should allow the fast path", func() {
				d, err := c.Evaluate(fastReport(0.95, 0.30), cfg)
				So(err, ShouldBeNil)
				So(d.ShortCircuit, ShouldBeTrue)
			})
		})

		Convey("When the guard is broken", func() {
			cfg.Cascade.Guard = "report.gap >"
			d, err := c.Evaluate(fastReport(0.92, 0.62), cfg)

			Convey("Then it should escalate and report the error", func() {
				So(errors.Is(err, guard.ErrCompile), ShouldBeTrue)
				So(d.ShortCircuit, ShouldBeFalse)
				So(d.Escalation, ShouldEqual, cascade.EscalateGuardError)
			})
		})
	})
}
