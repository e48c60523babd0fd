// Package config defines process configuration and its loading.
package config

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/okian/boardcheck/internal/domain/model"
	"github.com/okian/boardcheck/pkg/tracing"
)

// Backend kinds.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	SinkMemory   = "memory"
	SinkPostgres = "postgres"

	InferenceSimulated = "simulated"
	InferenceHTTP      = "http"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory boarding-event queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of verification workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many event ids are remembered for idempotency.
	DedupeSize int `koanf:"dedupe_size"`

	// ConfigStore selects where model configs live: memory, postgres or redis.
	ConfigStore string `koanf:"config_store"`

	PostgresDSN string `koanf:"postgres_dsn"`
	RedisAddr   string `koanf:"redis_addr"`
	RedisDB     int    `koanf:"redis_db"`
	RedisPrefix string `koanf:"redis_prefix"`

	// AuditSink selects the primary audit store: memory or postgres. S3 is
	// write-only and serves as an archive through AuditArchiveS3.
	AuditSink string `koanf:"audit_sink"`
	// AuditArchiveS3 tees every record to S3 in addition to the primary sink.
	AuditArchiveS3 bool `koanf:"audit_archive_s3"`
	// AuditRetryMax is how many times a failed audit write is retried.
	AuditRetryMax int `koanf:"audit_retry_max"`

	S3Bucket    string `koanf:"s3_bucket"`
	S3Region    string `koanf:"s3_region"`
	S3Endpoint  string `koanf:"s3_endpoint"`
	S3Prefix    string `koanf:"s3_prefix"`
	// S3AccessKey and S3SecretKey override the default AWS credential chain
	// (env, shared profile, instance or task role) when both are set.
	S3AccessKey string `koanf:"s3_access_key"`
	S3SecretKey string `koanf:"s3_secret_key"`

	// InferenceMode selects the score source: simulated or http.
	InferenceMode      string `koanf:"inference_mode"`
	InferenceURL       string `koanf:"inference_url"`
	InferenceTimeoutMS int    `koanf:"inference_timeout_ms"`

	// EnsembleModels restricts the models queried on escalation. Empty means
	// every enabled model of the active config.
	EnsembleModels []string `koanf:"ensemble_models"`

	// SimulatedLatencyMinMS and SimulatedLatencyMaxMS bound the simulated
	// inference delay.
	SimulatedLatencyMinMS int `koanf:"simulated_latency_min_ms"`
	SimulatedLatencyMaxMS int `koanf:"simulated_latency_max_ms"`

	// Tracing exports spans over OTLP when TracingEnabled is set.
	TracingEnabled  bool    `koanf:"tracing_enabled"`
	TracingExporter string  `koanf:"tracing_exporter"`
	OTLPEndpoint    string  `koanf:"otlp_endpoint"`
	OTLPInsecure    bool    `koanf:"otlp_insecure"`
	SamplingRate    float64 `koanf:"sampling_rate"`
	Environment     string  `koanf:"environment"`
}

// New creates a Config holding the defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		QueueSize:             10_000,
		WorkerCount:           runtime.NumCPU() * 4,
		DedupeSize:            50_000,
		ConfigStore:           StoreMemory,
		RedisPrefix:           "boardcheck:mlconfig:",
		AuditSink:             SinkMemory,
		AuditRetryMax:         3,
		S3Region:              "us-east-1",
		S3Prefix:              "boardcheck",
		InferenceMode:         InferenceSimulated,
		InferenceTimeoutMS:    2_000,
		SimulatedLatencyMinMS: 20,
		SimulatedLatencyMaxMS: 60,
		TracingExporter:       tracing.ExporterOTLPHTTP,
		SamplingRate:          0.1,
		Environment:           "development",
	}
}

// InferenceTimeout returns InferenceTimeoutMS as a duration.
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.InferenceTimeoutMS) * time.Millisecond
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	known := []string{model.MobileFaceNet, model.ArcFaceInt8, model.AdaFace}
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.AuditRetryMax < 0:
		return fmt.Errorf("%w: audit_retry_max must not be negative", ErrInvalidConfig)
	case c.InferenceTimeoutMS <= 0:
		return fmt.Errorf("%w: inference_timeout_ms must be positive", ErrInvalidConfig)
	case c.SimulatedLatencyMinMS < 0 || c.SimulatedLatencyMaxMS < c.SimulatedLatencyMinMS:
		return fmt.Errorf("%w: simulated latency range is invalid", ErrInvalidConfig)
	}

	switch c.ConfigStore {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for config_store=postgres", ErrInvalidConfig)
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for config_store=redis", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown config_store %q", ErrInvalidConfig, c.ConfigStore)
	}

	switch c.AuditSink {
	case SinkMemory:
	case SinkPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for audit_sink=postgres", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown audit_sink %q", ErrInvalidConfig, c.AuditSink)
	}
	if c.AuditArchiveS3 && c.S3Bucket == "" {
		return fmt.Errorf("%w: s3_bucket is required for audit_archive_s3", ErrInvalidConfig)
	}
	if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
		return fmt.Errorf("%w: s3_access_key and s3_secret_key must be set together", ErrInvalidConfig)
	}

	switch c.InferenceMode {
	case InferenceSimulated:
	case InferenceHTTP:
		if c.InferenceURL == "" {
			return fmt.Errorf("%w: inference_url is required for inference_mode=http", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown inference_mode %q", ErrInvalidConfig, c.InferenceMode)
	}

	if c.TracingEnabled {
		switch {
		case c.TracingExporter != tracing.ExporterOTLPHTTP && c.TracingExporter != tracing.ExporterOTLPGRPC:
			return fmt.Errorf("%w: unknown tracing_exporter %q", ErrInvalidConfig, c.TracingExporter)
		case c.SamplingRate < 0 || c.SamplingRate > 1:
			return fmt.Errorf("%w: sampling_rate must be in [0,1]", ErrInvalidConfig)
		}
	}

	for _, name := range c.EnsembleModels {
		if !slices.Contains(known, name) {
			return fmt.Errorf("%w: unknown ensemble model %q", ErrInvalidConfig, name)
		}
	}
	return nil
}
