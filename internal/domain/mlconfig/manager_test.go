package mlconfig_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/okian/boardcheck/internal/adapters/repository"
	"github.com/okian/boardcheck/internal/domain/mlconfig"
	"github.com/okian/boardcheck/internal/domain/model"
	"github.com/okian/boardcheck/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.InitWithWriter(io.Discard)
}

type failingStore struct {
	mlconfig.Store
	err error
}

func (f failingStore) GetActive(context.Context) (mlconfig.ModelConfig, error) {
	return mlconfig.ModelConfig{}, f.err
}

func TestManagerActive(t *testing.T) {
	Convey("Given a manager over an empty store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		fixed := time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC)
		m := mlconfig.NewManager(store, mlconfig.WithClock(func() time.Time { return fixed }))

		Convey("When the active config is requested", func() {
			cfg, err := m.Active(ctx)

			Convey("Then the default should be bootstrapped as version 1", func() {
				So(err, ShouldBeNil)
				So(cfg.Version, ShouldEqual, 1)
				So(cfg.IsActive, ShouldBeTrue)
				So(cfg.CreatedAt, ShouldEqual, fixed)
				So(cfg.Voting.MinimumConsensus, ShouldEqual, 2)
			})

			Convey("And a second request should not bootstrap again", func() {
				again, err := m.Active(ctx)
				So(err, ShouldBeNil)
				So(again.Version, ShouldEqual, 1)
				all, _ := m.List(ctx)
				So(len(all), ShouldEqual, 1)
			})
		})

		Convey("When the bootstrap config is invalid", func() {
			bad := mlconfig.NewManager(store, mlconfig.WithBootstrap(func() mlconfig.ModelConfig {
				c := mlconfig.Default()
				c.Voting.MinimumConsensus = 0
				return c
			}))
			_, err := bad.Active(ctx)

			Convey("Then the error should surface instead of running unconfigured", func() {
				So(errors.Is(err, mlconfig.ErrInvalidConfig), ShouldBeTrue)
			})
		})

		Convey("When the store fails", func() {
			boom := errors.New("connection refused")
			broken := mlconfig.NewManager(failingStore{Store: store, err: boom})
			_, err := broken.Active(ctx)

			Convey("Then the store error should be returned", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
			})
		})
	})
}

func TestManagerVersions(t *testing.T) {
	Convey("Given a manager with an active default", t, func() {
		ctx := context.Background()
		m := mlconfig.NewManager(repository.NewMemoryStore())
		v1, err := m.Active(ctx)
		So(err, ShouldBeNil)

		Convey("When duplicating with an edit", func() {
			v2, err := m.Duplicate(ctx, v1.Version, func(c *mlconfig.ModelConfig) {
				c.Thresholds.HighConfidence = 0.7
				c.Description = "stricter"
			})

			Convey("Then a new inactive version should exist and the source stays intact", func() {
				So(err, ShouldBeNil)
				So(v2.Version, ShouldEqual, 2)
				So(v2.IsActive, ShouldBeFalse)
				So(v2.Description, ShouldEqual, "stricter")
				So(v2.Thresholds.HighConfidence, ShouldEqual, 0.7)

				src, _ := m.Get(ctx, v1.Version)
				So(src.Thresholds.HighConfidence, ShouldEqual, 0.60)
				So(src.IsActive, ShouldBeTrue)
			})

			Convey("And activating it should retire version 1", func() {
				So(m.Activate(ctx, v2.Version), ShouldBeNil)
				active, _ := m.Active(ctx)
				So(active.Version, ShouldEqual, 2)
				old, _ := m.Get(ctx, 1)
				So(old.IsActive, ShouldBeFalse)
			})
		})

		Convey("When a duplicate edit breaks validation", func() {
			_, err := m.Duplicate(ctx, v1.Version, func(c *mlconfig.ModelConfig) {
				p := c.Models[model.MobileFaceNet]
				p.Weight = 0.9
				c.Models[model.MobileFaceNet] = p
			})

			Convey("Then nothing should be saved", func() {
				So(errors.Is(err, mlconfig.ErrInvalidConfig), ShouldBeTrue)
				all, _ := m.List(ctx)
				So(len(all), ShouldEqual, 1)
			})
		})

		Convey("When creating from a draft that claims a version", func() {
			draft := mlconfig.Default()
			draft.Version = 42
			draft.IsActive = true
			saved, err := m.Create(ctx, draft)

			Convey("Then the store should assign the version and leave it inactive", func() {
				So(err, ShouldBeNil)
				So(saved.Version, ShouldEqual, 2)
				So(saved.IsActive, ShouldBeFalse)
			})
		})

		Convey("When resolving unknown versions", func() {
			_, errGet := m.Get(ctx, 0)
			_, errDup := m.Duplicate(ctx, 5, nil)
			errAct := m.Activate(ctx, 5)

			Convey("Then each should report not found", func() {
				So(errors.Is(errGet, mlconfig.ErrVersionNotFound), ShouldBeTrue)
				So(errors.Is(errDup, mlconfig.ErrVersionNotFound), ShouldBeTrue)
				So(errors.Is(errAct, mlconfig.ErrVersionNotFound), ShouldBeTrue)
			})
		})
	})
}
