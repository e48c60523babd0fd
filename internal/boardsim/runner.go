package boardsim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/boardcheck/internal/domain/audit"
	"github.com/okian/boardcheck/internal/domain/model"
	"github.com/okian/boardcheck/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Run executes a complete boarding simulation against a running service.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	normalize(config)
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting boarding simulation",
		logger.String("baseURL", config.BaseURL),
		logger.String("mode", config.Mode),
		logger.Int("events", config.NumEvents),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout))

	client := NewClient(config.BaseURL, config.Timeout)
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	events, err := generateEvents(ctx, config, stats)
	if err != nil {
		return nil, fmt.Errorf("event generation failed: %w", err)
	}

	submitEvents(ctx, config, client, events, stats)

	if config.OutputFile != "" {
		if err := saveEventsToFile(ctx, config.OutputFile, events); err != nil {
			logger.Get().Warn(ctx, "failed to save events to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

func normalize(config *Config) {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.NumEvents <= 0 {
		config.NumEvents = defaultNumEvents
	}
	if config.Buses <= 0 {
		config.Buses = defaultBuses
	}
	if config.Workers <= 0 {
		config.Workers = defaultWorkers
	}
	if config.Mode != ModeAsync {
		config.Mode = ModeSync
	}
	if config.DuplicateRatio < 0 || config.DuplicateRatio >= 1 {
		config.DuplicateRatio = 0
	}
}

// submitEvents fans events out to config.Workers submitters and tallies the
// outcome of each submission.
func submitEvents(ctx context.Context, config *Config, client *Client, events []Event, stats *Stats) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	eventChan := make(chan Event, config.Workers*channelFactor)

	for range config.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range eventChan {
				outcome := submitSingleEvent(ctx, config, client, event)
				mu.Lock()
				outcome.apply(stats)
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(eventChan)
		for _, event := range events {
			select {
			case <-ctx.Done():
				return
			case eventChan <- event:
			}
		}
	}()

	wg.Wait()
}

// outcome is the result of one submission.
type outcome struct {
	err       error
	ack       Ack
	record    audit.Record
	hasRecord bool
}

func submitSingleEvent(ctx context.Context, config *Config, client *Client, event Event) outcome {
	if config.Mode == ModeAsync {
		ack, err := client.Enqueue(ctx, event)
		return outcome{err: err, ack: ack}
	}
	rec, err := client.Verify(ctx, event)
	if err == nil && config.Verbose && !rec.Accepted() {
		logger.Get().Info(ctx, "boarding not verified",
			logger.String("eventID", event.EventID),
			logger.String("status", string(rec.VerificationStatus)),
			logger.String("reason", string(rec.Reason)),
			logger.Float64("combinedScore", rec.CombinedScore))
	}
	return outcome{err: err, record: rec, hasRecord: err == nil}
}

func (o outcome) apply(stats *Stats) {
	stats.EventsSubmitted++
	switch {
	case errors.Is(o.err, ErrThrottled):
		stats.Throttled++
		return
	case o.err != nil:
		stats.EventsFailed++
		return
	case !o.hasRecord:
		if o.ack.Duplicate {
			stats.Duplicate++
		} else {
			stats.Accepted++
		}
		return
	}

	stats.Accepted++
	switch o.record.VerificationStatus {
	case model.StatusVerified:
		stats.Verified++
	case model.StatusRejected:
		stats.Rejected++
	case model.StatusFlagged:
		stats.Flagged++
	case model.StatusPending:
		stats.Pending++
	}
	if o.record.UsedFastPath {
		stats.FastPath++
	}
	if o.record.EscalatedToEnsemble {
		stats.Escalated++
	}
}

// saveEventsToFile writes events to filename as an indented JSON array.
func saveEventsToFile(ctx context.Context, filename string, events []Event) error {
	if len(events) == 0 {
		return errors.New("no events to save")
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	logger.Get().Info(ctx, "events saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final simulation statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, eventsPerSecond float64
	if stats.EventsSubmitted > 0 {
		successRate = float64(stats.Accepted+stats.Duplicate) / float64(stats.EventsSubmitted) * percent
	}
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("throttled", stats.Throttled),
		logger.Int("verified", stats.Verified),
		logger.Int("rejected", stats.Rejected),
		logger.Int("flagged", stats.Flagged),
		logger.Int("pending", stats.Pending),
		logger.Int("fastPath", stats.FastPath),
		logger.Int("escalated", stats.Escalated),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
