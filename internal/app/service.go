// Package service wires the verification pipeline behind the HTTP API and
// the worker pool.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/boardcheck/internal/adapters/auditsink"
	"github.com/okian/boardcheck/internal/adapters/inference"
	eventqueue "github.com/okian/boardcheck/internal/adapters/mq/queue"
	workerpool "github.com/okian/boardcheck/internal/adapters/mq/worker"
	"github.com/okian/boardcheck/internal/domain/audit"
	"github.com/okian/boardcheck/internal/domain/cascade"
	"github.com/okian/boardcheck/internal/domain/dedupe"
	"github.com/okian/boardcheck/internal/domain/mlconfig"
	"github.com/okian/boardcheck/internal/domain/model"
	"github.com/okian/boardcheck/pkg/logger"
	"github.com/okian/boardcheck/pkg/metrics"
)

const (
	defaultQueueSize        = 10_000
	defaultDedupeSize       = 50_000
	defaultInferenceTimeout = 2 * time.Second
	defaultAuditRetryMax    = 3
	defaultAuditRetryBase   = 50 * time.Millisecond
)

// ConfigManager is the versioned model-config surface the service needs.
// *mlconfig.Manager satisfies it.
type ConfigManager interface {
	mlconfig.Provider
	Get(ctx context.Context, version int) (mlconfig.ModelConfig, error)
	List(ctx context.Context) ([]mlconfig.ModelConfig, error)
	Create(ctx context.Context, draft mlconfig.ModelConfig) (mlconfig.ModelConfig, error)
	Duplicate(ctx context.Context, version int, edit func(*mlconfig.ModelConfig)) (mlconfig.ModelConfig, error)
	Activate(ctx context.Context, version int) error
}

// Service runs boarding verifications synchronously through Verify and
// asynchronously through Enqueue and the worker pool.
type Service struct {
	mu sync.RWMutex

	configs ConfigManager
	source  inference.Source
	sink    auditsink.Store
	cascade *cascade.Controller

	deduper    dedupe.Deduper
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool

	workerCount      int
	queueSize        int
	dedupeSize       int
	inferenceTimeout time.Duration
	ensembleModels   []string
	auditRetryMax    uint64
	auditRetryBase   time.Duration
	now              func() time.Time
	newID            func() string

	started bool

	logger logger.Logger
}

// New constructs a Service. Verify is usable immediately; Enqueue needs Start.
func New(configs ConfigManager, source inference.Source, sink auditsink.Store, opts ...Option) (*Service, error) {
	if configs == nil || source == nil || sink == nil {
		return nil, fmt.Errorf("%w: configs, source and sink are required", ErrNilDependency)
	}

	s := &Service{
		configs:          configs,
		source:           source,
		sink:             sink,
		cascade:          cascade.NewController(),
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        defaultQueueSize,
		dedupeSize:       defaultDedupeSize,
		inferenceTimeout: defaultInferenceTimeout,
		auditRetryMax:    defaultAuditRetryMax,
		auditRetryBase:   defaultAuditRetryBase,
		now:              time.Now,
		newID:            uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	return s, nil
}

// Start builds the intake queue, deduper and worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting boardcheck service...")

	if _, err := s.configs.Active(ctx); err != nil {
		return fmt.Errorf("resolve active config: %w", err)
	}

	s.deduper = dedupe.NewMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s)
	s.workerPool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "boardcheck service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)

	return nil
}

// Stop closes intake and waits for queued events to be verified.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping boardcheck service...")

	err := s.workerPool.Shutdown(ctx)
	s.started = false

	if err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
		return err
	}
	s.logger.Info(ctx, "boardcheck service stopped")
	return nil
}

// Enqueue accepts a boarding event for asynchronous verification. It reports
// duplicate=true, without error, for an event id already accepted. A full
// queue returns ErrBackpressure and forgets the id so the kiosk may retry.
func (s *Service) Enqueue(ctx context.Context, event model.BoardingEvent) (duplicate bool, err error) { //nolint:gocritic // hugeParam: events are passed by value
	if strings.TrimSpace(event.EventID) == "" {
		return false, fmt.Errorf("%w: missing event_id", ErrInvalidEvent)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return false, ErrNotStarted
	}

	if s.deduper.SeenAndRecord(ctx, event.EventID) {
		metrics.RecordEventDuplicate()
		s.logger.Debug(ctx, "duplicate event detected, skipping", logger.String("event_id", event.EventID))
		return true, nil
	}

	if err := s.eventQueue.Enqueue(ctx, event); err != nil {
		s.deduper.Unrecord(ctx, event.EventID)
		if errors.Is(err, eventqueue.ErrQueueFull) {
			return false, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return false, fmt.Errorf("enqueue event %s: %w", event.EventID, err)
	}

	metrics.RecordEventAccepted()
	return false, nil
}

// GetDecision returns a persisted audit record.
func (s *Service) GetDecision(ctx context.Context, recordID string) (audit.Record, error) {
	return s.sink.Get(ctx, recordID)
}

// ActiveConfig returns the active model config, bootstrapping the default.
func (s *Service) ActiveConfig(ctx context.Context) (mlconfig.ModelConfig, error) {
	return s.configs.Active(ctx)
}

// Config returns one model config version.
func (s *Service) Config(ctx context.Context, version int) (mlconfig.ModelConfig, error) {
	return s.configs.Get(ctx, version)
}

// Configs lists every model config version.
func (s *Service) Configs(ctx context.Context) ([]mlconfig.ModelConfig, error) {
	return s.configs.List(ctx)
}

// CreateConfig validates and stores draft as a new inactive version.
func (s *Service) CreateConfig(ctx context.Context, draft mlconfig.ModelConfig) (mlconfig.ModelConfig, error) {
	return s.configs.Create(ctx, draft)
}

// DuplicateConfig copies version into a new inactive version. A non-empty
// description replaces the default one.
func (s *Service) DuplicateConfig(ctx context.Context, version int, description string) (mlconfig.ModelConfig, error) {
	return s.configs.Duplicate(ctx, version, func(c *mlconfig.ModelConfig) {
		if description != "" {
			c.Description = description
		}
	})
}

// ActivateConfig makes version the only active config.
func (s *Service) ActivateConfig(ctx context.Context, version int) error {
	if err := s.configs.Activate(ctx, version); err != nil {
		return err
	}
	s.logger.Info(ctx, "activated model config", logger.Int("version", version))
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	// Active may bootstrap or hit the store; resolve it before taking the lock.
	cfg, cfgErr := s.configs.Active(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":          s.started,
		"workerCount":      s.workerCount,
		"queueCapacity":    s.queueSize,
		"dedupeCapacity":   s.dedupeSize,
		"inferenceTimeout": s.inferenceTimeout.String(),
	}

	if cfgErr == nil {
		stats["activeConfigVersion"] = cfg.Version
		stats["enabledModels"] = cfg.EnabledModels()
		stats["cascadeEnabled"] = cfg.Cascade.Enabled
	}

	if s.started {
		queueLen := s.eventQueue.Len()
		stats["queueLength"] = queueLen
		stats["dedupeEntries"] = s.deduper.Size()
		stats["workers"] = s.workerPool.Size()
		metrics.UpdateQueueSize(queueLen)
	}

	return stats
}
