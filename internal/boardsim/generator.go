package boardsim

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/okian/boardcheck/pkg/logger"
)

const ratioDivisor = 1_000_000

// randomRatio returns a value in [0, 1) using crypto/rand.
func randomRatio() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(ratioDivisor))
	return float64(n.Int64()) / ratioDivisor
}

// generateEvents creates config.NumEvents boarding events spread across
// config.Buses buses. A DuplicateRatio share of them reuse an earlier
// event_id so the service's idempotency is exercised.
func generateEvents(ctx context.Context, config *Config, stats *Stats) ([]Event, error) {
	logger.Get().Info(ctx, "generating boarding events",
		logger.Int("numEvents", config.NumEvents),
		logger.Int("buses", config.Buses),
		logger.Float64("duplicateRatio", config.DuplicateRatio))

	events := make([]Event, 0, config.NumEvents)
	for i := 0; i < config.NumEvents; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during event generation: %w", err)
		}
		if i > 0 && randomRatio() < config.DuplicateRatio {
			n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(events))))
			events = append(events, events[n.Int64()])
			continue
		}
		event, err := generateSingleEvent(i, config.Buses)
		if err != nil {
			return nil, fmt.Errorf("failed to generate event %d: %w", i, err)
		}
		events = append(events, event)
	}

	stats.EventsGenerated = len(events)
	logger.Get().Info(ctx, "generated events successfully", logger.Int("count", len(events)))
	return events, nil
}

// generateSingleEvent creates one event with a random capture. The simulated
// inference backend derives the pictured student from the image bytes.
func generateSingleEvent(index, buses int) (Event, error) {
	image := make([]byte, imageSize)
	if _, err := rand.Read(image); err != nil {
		return Event{}, err
	}
	bus := index % buses
	return Event{
		EventID:    uuid.NewString(),
		BusID:      fmt.Sprintf("bus-%02d", bus+1),
		KioskID:    fmt.Sprintf("kiosk-%02d-%d", bus+1, index%kiosksPerBus+1),
		Image:      image,
		CapturedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}
