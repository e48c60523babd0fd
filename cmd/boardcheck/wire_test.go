package main

import (
	"context"
	"errors"
	"io"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/boardcheck/internal/adapters/auditsink"
	"github.com/okian/boardcheck/internal/adapters/inference"
	"github.com/okian/boardcheck/internal/adapters/repository"
	"github.com/okian/boardcheck/internal/config"
	"github.com/okian/boardcheck/pkg/logger"
	"github.com/okian/boardcheck/pkg/tracing"
)

func init() {
	_ = logger.InitWithWriter(io.Discard)
}

func TestWire(t *testing.T) {
	Convey("Given the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)

		Convey("wire builds in-memory backends and a simulated source", func() {
			b, err := wire(ctx, cfg)
			So(err, ShouldBeNil)
			defer b.close(ctx)

			_, ok := b.store.(*repository.MemoryStore)
			So(ok, ShouldBeTrue)
			_, ok = b.sink.(*auditsink.Memory)
			So(ok, ShouldBeTrue)
			_, ok = b.source.(*inference.SimulatedSource)
			So(ok, ShouldBeTrue)
		})

		Convey("an S3 archive tees the primary sink", func() {
			cfg.AuditArchiveS3 = true
			cfg.S3Bucket = "boarding-audit"
			sink, err := buildAuditSink(ctx, cfg, nil)
			So(err, ShouldBeNil)
			_, ok := sink.(*auditsink.Tee)
			So(ok, ShouldBeTrue)
		})

		Convey("http inference uses the configured URL", func() {
			cfg.InferenceMode = config.InferenceHTTP
			cfg.InferenceURL = "http://inference.local:8000"
			source, err := buildSource(cfg)
			So(err, ShouldBeNil)
			_, ok := source.(*inference.HTTPSource)
			So(ok, ShouldBeTrue)
		})

		Convey("tracing settings reach the tracer provider", func() {
			cfg.TracingEnabled = true
			cfg.OTLPEndpoint = "collector:4318"
			cfg.OTLPInsecure = true
			cfg.SamplingRate = 0.5

			tc := tracingConfig(cfg)
			So(tc.Enabled, ShouldBeTrue)
			So(tc.ServiceName, ShouldEqual, serviceName)
			So(tc.ExporterType, ShouldEqual, tracing.ExporterOTLPHTTP)
			So(tc.OTLPEndpoint, ShouldEqual, "collector:4318")
			So(tc.Insecure, ShouldBeTrue)
			So(tc.SamplingRate, ShouldEqual, 0.5)
		})

		Convey("unknown backends are rejected", func() {
			cfg.ConfigStore = "etcd"
			_, err := buildConfigStore(ctx, cfg, nil, &backends{})
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)

			cfg.AuditSink = "kafka"
			_, err = buildAuditSink(ctx, cfg, nil)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)

			cfg.InferenceMode = "grpc"
			_, err = buildSource(cfg)
			So(err, ShouldNotBeNil)
		})

		Convey("an unreachable redis fails wiring", func() {
			cfg.ConfigStore = config.StoreRedis
			cfg.RedisAddr = "127.0.0.1:1"
			_, err := wire(ctx, cfg)
			So(err, ShouldNotBeNil)
		})
	})
}
