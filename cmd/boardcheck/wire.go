package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/boardcheck/internal/adapters/auditsink"
	"github.com/okian/boardcheck/internal/adapters/inference"
	"github.com/okian/boardcheck/internal/adapters/repository"
	"github.com/okian/boardcheck/internal/config"
	"github.com/okian/boardcheck/internal/domain/mlconfig"
	"github.com/okian/boardcheck/pkg/logger"
	"github.com/okian/boardcheck/pkg/tracing"
)

const serviceName = "boardcheck"

// backends holds the adapters chosen by configuration and what must be
// closed on shutdown.
type backends struct {
	store  mlconfig.Store
	sink   auditsink.Store
	source inference.Source

	closers []func() error
}

func (b *backends) close(ctx context.Context) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Get().Warn(ctx, "close backend", logger.Error(err))
		}
	}
}

// wire builds the config store, audit sink and score source named in cfg.
// One Postgres pool is shared when both the store and the sink use it.
func wire(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}
	fail := func(err error) (*backends, error) {
		b.close(ctx)
		return nil, err
	}

	var db *sql.DB
	if cfg.ConfigStore == config.StorePostgres || cfg.AuditSink == config.SinkPostgres {
		var err error
		if db, err = repository.OpenPostgres(ctx, cfg.PostgresDSN); err != nil {
			return fail(err)
		}
		b.closers = append(b.closers, db.Close)
	}

	store, err := buildConfigStore(ctx, cfg, db, b)
	if err != nil {
		return fail(err)
	}
	b.store = store

	sink, err := buildAuditSink(ctx, cfg, db)
	if err != nil {
		return fail(err)
	}
	b.sink = sink

	source, err := buildSource(cfg)
	if err != nil {
		return fail(err)
	}
	b.source = source

	logger.Get().Info(ctx, "backends ready",
		logger.String("config_store", cfg.ConfigStore),
		logger.String("audit_sink", cfg.AuditSink),
		logger.Bool("audit_archive_s3", cfg.AuditArchiveS3),
		logger.String("inference_mode", cfg.InferenceMode),
	)
	return b, nil
}

// tracingConfig maps process configuration onto the tracer provider.
func tracingConfig(cfg *config.Config) tracing.Config {
	return tracing.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  serviceName,
		Environment:  cfg.Environment,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.SamplingRate,
		Insecure:     cfg.OTLPInsecure,
	}
}

func buildConfigStore(ctx context.Context, cfg *config.Config, db *sql.DB, b *backends) (mlconfig.Store, error) {
	switch cfg.ConfigStore {
	case config.StoreMemory:
		return repository.NewMemoryStore(), nil
	case config.StorePostgres:
		store, err := repository.NewPostgresStore(db)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		b.closers = append(b.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		return repository.NewRedisStore(client, repository.WithKeyPrefix(cfg.RedisPrefix))
	default:
		return nil, fmt.Errorf("%w: unknown config_store %q", config.ErrInvalidConfig, cfg.ConfigStore)
	}
}

func buildAuditSink(ctx context.Context, cfg *config.Config, db *sql.DB) (auditsink.Store, error) {
	var primary auditsink.Store
	switch cfg.AuditSink {
	case config.SinkMemory:
		primary = auditsink.NewMemory()
	case config.SinkPostgres:
		pg, err := auditsink.NewPostgres(db)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		primary = pg
	default:
		return nil, fmt.Errorf("%w: unknown audit_sink %q", config.ErrInvalidConfig, cfg.AuditSink)
	}

	if !cfg.AuditArchiveS3 {
		return primary, nil
	}

	client, err := auditsink.NewS3Client(ctx, auditsink.S3Config{
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		Prefix:    cfg.S3Prefix,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		return nil, err
	}
	archive, err := auditsink.NewS3(client, cfg.S3Bucket, cfg.S3Prefix)
	if err != nil {
		return nil, err
	}
	return auditsink.NewTee(primary, archive)
}

func buildSource(cfg *config.Config) (inference.Source, error) {
	switch cfg.InferenceMode {
	case config.InferenceSimulated:
		return inference.NewSimulatedSource(inference.WithLatencyRange(
			time.Duration(cfg.SimulatedLatencyMinMS)*time.Millisecond,
			time.Duration(cfg.SimulatedLatencyMaxMS)*time.Millisecond,
		)), nil
	case config.InferenceHTTP:
		return inference.NewHTTPSource(cfg.InferenceURL, inference.WithTimeout(cfg.InferenceTimeout()))
	default:
		return nil, errors.New("unknown inference_mode " + cfg.InferenceMode)
	}
}
