package service

import (
	"time"

	"github.com/okian/boardcheck/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued boarding events.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many event ids are remembered for idempotency.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithInferenceTimeout bounds each model call.
func WithInferenceTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.inferenceTimeout = d
		}
	}
}

// WithEnsembleModels restricts which models are queried when the cascade
// escalates. Empty means every enabled model of the active config.
func WithEnsembleModels(names []string) Option {
	return func(s *Service) {
		s.ensembleModels = append([]string(nil), names...)
	}
}

// WithAuditRetry sets how many times a failed audit write is retried and the
// base of the Fibonacci backoff between attempts.
func WithAuditRetry(maxRetries uint64, base time.Duration) Option {
	return func(s *Service) {
		s.auditRetryMax = maxRetries
		if base > 0 {
			s.auditRetryBase = base
		}
	}
}

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how record ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
