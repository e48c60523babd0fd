package mlconfig_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/boardcheck/internal/domain/mlconfig"
	"github.com/okian/boardcheck/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func fieldsOf(err error) []string {
	var out []string
	type multi interface{ Unwrap() []error }
	var walk func(error)
	walk = func(e error) {
		if m, ok := e.(multi); ok {
			for _, inner := range m.Unwrap() {
				walk(inner)
			}
			return
		}
		var ve *mlconfig.ValidationError
		if errors.As(e, &ve) {
			out = append(out, ve.Field)
		}
	}
	walk(err)
	return out
}

func TestDefault(t *testing.T) {
	Convey("Given the default config", t, func() {
		cfg := mlconfig.Default()

		Convey("Then it should validate", func() {
			So(cfg.Validate(), ShouldBeNil)
		})

		Convey("Then it should carry the documented policy", func() {
			So(cfg.EnabledModels(), ShouldResemble, []string{model.ArcFaceInt8, model.MobileFaceNet})
			So(cfg.Models[model.AdaFace].Weight, ShouldEqual, 0)
			arc := cfg.Models[model.ArcFaceInt8].TemperatureScaling
			So(arc.Enabled, ShouldBeTrue)
			So(arc.Temperature, ShouldEqual, 3.0)
			So(arc.Shift, ShouldEqual, -0.15)
			So(cfg.Thresholds, ShouldResemble, mlconfig.CombinedThresholds{HighConfidence: 0.60, MediumConfidence: 0.45, MatchThreshold: 0.35})
			So(cfg.Voting, ShouldResemble, mlconfig.VotingPolicy{MinimumConsensus: 2, RequireAllAgree: true, UseWeightedVote: true})
			So(cfg.Cascade.FastModel, ShouldEqual, model.MobileFaceNet)
			So(cfg.Cascade.AmbiguityThreshold, ShouldEqual, 0.12)
		})

		Convey("When cloning", func() {
			cp := cfg.Clone()
			cp.Models[model.MobileFaceNet] = mlconfig.ModelParams{Weight: 1}

			Convey("Then the original should be untouched", func() {
				So(cfg.Models[model.MobileFaceNet].Weight, ShouldEqual, 0.5)
			})
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given configs with a single defect", t, func() {
		cases := []struct {
			name  string
			field string
			edit  func(*mlconfig.ModelConfig)
		}{
			{"weights off by more than the tolerance", "models", func(c *mlconfig.ModelConfig) {
				p := c.Models[model.MobileFaceNet]
				p.Weight = 0.6
				c.Models[model.MobileFaceNet] = p
			}},
			{"weight above one", "models.adaface.weight", func(c *mlconfig.ModelConfig) {
				p := c.Models[model.AdaFace]
				p.Weight = 1.5
				c.Models[model.AdaFace] = p
			}},
			{"negative threshold", "models.mobilefacenet.threshold", func(c *mlconfig.ModelConfig) {
				p := c.Models[model.MobileFaceNet]
				p.Threshold = -0.1
				c.Models[model.MobileFaceNet] = p
			}},
			{"zero temperature", "models.arcface_int8.temperature_scaling.temperature", func(c *mlconfig.ModelConfig) {
				p := c.Models[model.ArcFaceInt8]
				p.TemperatureScaling.Temperature = 0
				c.Models[model.ArcFaceInt8] = p
			}},
			{"infinite shift", "models.arcface_int8.temperature_scaling.shift", func(c *mlconfig.ModelConfig) {
				p := c.Models[model.ArcFaceInt8]
				p.TemperatureScaling.Shift = math.Inf(1)
				c.Models[model.ArcFaceInt8] = p
			}},
			{"misordered thresholds", "combined_thresholds", func(c *mlconfig.ModelConfig) {
				c.Thresholds.MediumConfidence = 0.7
			}},
			{"minimum consensus too high", "voting.minimum_consensus", func(c *mlconfig.ModelConfig) {
				c.Voting.MinimumConsensus = 4
			}},
			{"minimum consensus zero", "voting.minimum_consensus", func(c *mlconfig.ModelConfig) {
				c.Voting.MinimumConsensus = 0
			}},
			{"disabled fast model", "cascade.fast_model", func(c *mlconfig.ModelConfig) {
				c.Cascade.FastModel = model.AdaFace
			}},
			{"ambiguity above one", "cascade.ambiguity_threshold", func(c *mlconfig.ModelConfig) {
				c.Cascade.AmbiguityThreshold = 2
			}},
			{"broken guard", "cascade.guard", func(c *mlconfig.ModelConfig) {
				c.Cascade.Guard = "report.gap >"
			}},
		}

		for _, tc := range cases {
			Convey("When the config has "+tc.name, func() {
				cfg := mlconfig.Default()
				tc.edit(&cfg)
				err := cfg.Validate()

				Convey("Then it should be rejected on "+tc.field, func() {
					So(errors.Is(err, mlconfig.ErrInvalidConfig), ShouldBeTrue)
					So(fieldsOf(err), ShouldContain, tc.field)
				})
			})
		}

		Convey("When weights are within the tolerance", func() {
			cfg := mlconfig.Default()
			p := cfg.Models[model.MobileFaceNet]
			p.Weight = 0.5005
			cfg.Models[model.MobileFaceNet] = p

			Convey("Then it should validate", func() {
				So(cfg.Validate(), ShouldBeNil)
			})
		})

		Convey("When every model is disabled", func() {
			cfg := mlconfig.Default()
			for name, p := range cfg.Models {
				p.Enabled = false
				cfg.Models[name] = p
			}
			cfg.Cascade.Enabled = false

			Convey("Then it should be rejected", func() {
				So(fieldsOf(cfg.Validate()), ShouldContain, "models")
			})
		})

		Convey("When several fields are wrong", func() {
			cfg := mlconfig.Default()
			cfg.Voting.MinimumConsensus = 9
			cfg.Thresholds.HighConfidence = 1.2

			Convey("Then each should be reported", func() {
				fields := fieldsOf(cfg.Validate())
				So(fields, ShouldContain, "voting.minimum_consensus")
				So(fields, ShouldContain, "combined_thresholds.high_confidence")
			})
		})
	})
}
