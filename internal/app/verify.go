package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	retry "github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/okian/boardcheck/internal/adapters/auditsink"
	"github.com/okian/boardcheck/internal/adapters/inference"
	"github.com/okian/boardcheck/internal/domain/audit"
	"github.com/okian/boardcheck/internal/domain/calibration"
	"github.com/okian/boardcheck/internal/domain/consensus"
	"github.com/okian/boardcheck/internal/domain/mlconfig"
	"github.com/okian/boardcheck/internal/domain/model"
	"github.com/okian/boardcheck/pkg/logger"
	"github.com/okian/boardcheck/pkg/metrics"
	"github.com/okian/boardcheck/pkg/tracing"
)

// Verify decides one boarding event and persists the audit record. The
// active config is read once, so a concurrent activation never mixes two
// versions within one decision. An event no model could score is persisted
// as PENDING for manual review rather than returned as an error.
func (s *Service) Verify(ctx context.Context, event model.BoardingEvent) (rec audit.Record, err error) { //nolint:gocritic // hugeParam: events are passed by value
	start := time.Now()
	ctx, end := tracing.StartSpan(ctx, "boardcheck.verify",
		attribute.String("event.id", event.EventID),
		attribute.String("bus.id", event.BusID),
	)
	defer func() { end(err) }()

	cfg, err := s.configs.Active(ctx)
	if err != nil {
		return audit.Record{}, fmt.Errorf("resolve active config: %w", err)
	}

	rec, err = s.decide(ctx, event, cfg)
	if err != nil {
		return audit.Record{}, err
	}

	rec.RecordID = s.newID()
	rec.EventID = event.EventID
	rec.BusID = event.BusID
	rec.KioskID = event.KioskID
	rec.DecidedAt = s.now().UTC()

	tracing.AddAttributes(ctx,
		attribute.String("record.id", rec.RecordID),
		attribute.String("verification.status", string(rec.VerificationStatus)),
		attribute.Int("config.version", rec.ConfigVersion),
		attribute.Bool("fast_path", rec.UsedFastPath),
	)

	if err = s.persist(ctx, rec); err != nil {
		return rec, err
	}

	metrics.RecordDecision(string(rec.VerificationStatus), string(rec.ConfidenceLevel), rec.CombinedScore)
	metrics.RecordVerificationLatency(float64(time.Since(start).Milliseconds()))

	s.logger.Info(ctx, "boarding decided",
		logger.String("event_id", rec.EventID),
		logger.String("record_id", rec.RecordID),
		logger.String("status", string(rec.VerificationStatus)),
		logger.String("confidence", string(rec.ConfidenceLevel)),
		logger.Float64("combined_score", rec.CombinedScore),
		logger.Int("config_version", rec.ConfigVersion),
		logger.Bool("fast_path", rec.UsedFastPath),
	)
	return rec, nil
}

// decide runs the cascade and, when it escalates, the ensemble.
func (s *Service) decide(ctx context.Context, event model.BoardingEvent, cfg mlconfig.ModelConfig) (audit.Record, error) { //nolint:gocritic // hugeParam: events are passed by value
	var (
		reports   []model.ModelScoreReport
		attempted = make(map[string]bool)
		escalated bool
	)

	if cfg.Cascade.Enabled {
		var fast *model.ModelScoreReport
		attempted[cfg.Cascade.FastModel] = true
		if report, err := s.infer(ctx, event.Image, cfg.Cascade.FastModel); err == nil {
			fast = &report
			reports = append(reports, report)
		}

		decision, err := s.cascade.Evaluate(fast, cfg)
		if err != nil {
			s.logger.Warn(ctx, "fast-path guard failed, escalating",
				logger.Int("config_version", cfg.Version), logger.Error(err))
		}
		if decision.ShortCircuit {
			metrics.RecordFastPath()
			s.observe(ctx, decision.Record, cfg)
			return decision.Record, nil
		}

		escalated = true
		metrics.RecordEscalation()
		s.logger.Debug(ctx, "escalating to ensemble",
			logger.String("event_id", event.EventID),
			logger.String("reason", string(decision.Escalation)),
		)
	}

	models := make([]string, 0, len(cfg.Models))
	for _, name := range s.ensembleFor(cfg) {
		if !attempted[name] {
			models = append(models, name)
		}
	}
	reports = append(reports, s.gatherEnsemble(ctx, event.Image, models)...)

	rec, err := consensus.Decide(reports, cfg)
	switch {
	case errors.Is(err, consensus.ErrInsufficientData):
		metrics.RecordInsufficientData()
		s.logger.Warn(ctx, "insufficient data, holding for manual review",
			logger.String("event_id", event.EventID),
			logger.Int("reports", len(reports)),
		)
		rec = consensus.Pending(reports, cfg)
	case err != nil:
		return audit.Record{}, fmt.Errorf("decide event %s: %w", event.EventID, err)
	}

	rec.EscalatedToEnsemble = escalated
	s.observe(ctx, rec, cfg)
	return rec, nil
}

// ensembleFor lists the models to query for cfg in a stable order.
func (s *Service) ensembleFor(cfg mlconfig.ModelConfig) []string {
	enabled := cfg.EnabledModels()
	if len(s.ensembleModels) == 0 {
		return enabled
	}
	out := make([]string, 0, len(enabled))
	for _, name := range enabled {
		if slices.Contains(s.ensembleModels, name) {
			out = append(out, name)
		}
	}
	return out
}

// gatherEnsemble queries models concurrently. A model that fails or times out
// is left out; the rest still decide.
func (s *Service) gatherEnsemble(ctx context.Context, image []byte, models []string) []model.ModelScoreReport {
	if len(models) == 0 {
		return nil
	}

	ctx, end := tracing.StartSpan(ctx, "boardcheck.ensemble", attribute.Int("models", len(models)))
	defer end(nil)

	// each goroutine owns one slot, so results keep the model order
	slots := make([]*model.ModelScoreReport, len(models))
	eg, gctx := errgroup.WithContext(ctx)

	for i, name := range models {
		eg.Go(func() error {
			report, err := s.infer(gctx, image, name)
			if err != nil {
				return nil
			}
			slots[i] = &report
			return nil
		})
	}
	_ = eg.Wait()

	out := make([]model.ModelScoreReport, 0, len(models))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// infer calls one model under the per-model timeout.
func (s *Service) infer(ctx context.Context, image []byte, modelName string) (report model.ModelScoreReport, err error) {
	ctx, end := tracing.StartClientSpan(ctx, "inference.infer", "inference", attribute.String("model", modelName))
	defer func() { end(err) }()

	ctx, cancel := context.WithTimeout(ctx, s.inferenceTimeout)
	defer cancel()

	start := time.Now()
	report, err = s.source.Infer(ctx, image, modelName)
	metrics.RecordInferenceLatency(modelName, float64(time.Since(start).Milliseconds()))
	if err != nil {
		reason := inference.Reason(err)
		metrics.RecordInferenceError(modelName, reason)
		s.logger.Warn(ctx, "model inference failed, omitting",
			logger.String("model", modelName),
			logger.String("reason", reason),
			logger.Error(err),
		)
		return model.ModelScoreReport{}, err
	}
	return report, nil
}

// observe logs and counts what the pure decision functions only report:
// scores pushed back into [0,1] and reports that were not counted.
func (s *Service) observe(ctx context.Context, rec audit.Record, cfg mlconfig.ModelConfig) {
	for _, r := range rec.PerModelResults {
		if !r.Counted {
			metrics.RecordIgnoredReport(r.ModelName)
			s.logger.Debug(ctx, "report ignored", logger.String("model", r.ModelName))
			continue
		}
		params, _ := cfg.Model(r.ModelName)
		if calibration.Calibrate(r.RawScore, params.TemperatureScaling).Clamped {
			metrics.RecordCalibrationClamp(r.ModelName)
			s.logger.Warn(ctx, "score clamped into [0,1]",
				logger.String("model", r.ModelName),
				logger.Float64("raw_score", r.RawScore),
				logger.Float64("calibrated_score", r.CalibratedScore),
			)
		}
	}
}

// persist writes rec with Fibonacci backoff. Conflicts and malformed records
// are not retried.
func (s *Service) persist(ctx context.Context, rec audit.Record) (err error) {
	ctx, end := tracing.StartClientSpan(ctx, "audit.write", "audit", attribute.String("record.id", rec.RecordID))
	defer func() { end(err) }()

	start := time.Now()
	backoff := retry.WithMaxRetries(s.auditRetryMax, retry.NewFibonacci(s.auditRetryBase))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		werr := s.sink.Write(ctx, rec)
		if werr == nil {
			return nil
		}
		if errors.Is(werr, auditsink.ErrConflict) || errors.Is(werr, auditsink.ErrMissingID) {
			return werr
		}
		metrics.RecordAuditRetry()
		s.logger.Warn(ctx, "audit write failed, retrying",
			logger.String("record_id", rec.RecordID),
			logger.Int("attempt", attempt),
			logger.Error(werr),
		)
		return retry.RetryableError(werr)
	})
	metrics.RecordAuditWriteLatency(float64(time.Since(start).Milliseconds()))

	if err != nil {
		metrics.RecordAuditWriteError()
		s.logger.Error(ctx, "audit write failed",
			logger.String("record_id", rec.RecordID),
			logger.String("event_id", rec.EventID),
			logger.Error(err),
		)
		return fmt.Errorf("persist record %s: %w", rec.RecordID, err)
	}
	return nil
}
