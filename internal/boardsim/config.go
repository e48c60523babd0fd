package boardsim

import "time"

// Submission modes.
const (
	ModeSync  = "sync"  // POST /verifications, one audit record per event
	ModeAsync = "async" // POST /events, acknowledged and decided by the worker pool
)

// Config holds configuration for a boarding simulation run.
type Config struct {
	BaseURL        string        // Base URL of the service
	NumEvents      int           // Number of boarding events to generate
	Buses          int           // Number of distinct buses the events are spread across
	Workers        int           // Number of concurrent submitters
	Timeout        time.Duration // HTTP request timeout
	Mode           string        // ModeSync or ModeAsync
	DuplicateRatio float64       // Share of events re-sent with an existing event_id
	OutputFile     string        // Optional JSON file receiving the generated events
	Verbose        bool          // Log every non-verified decision
}

// Event is the request body for /verifications and /events.
type Event struct {
	EventID    string `json:"event_id"`
	BusID      string `json:"bus_id,omitempty"`
	KioskID    string `json:"kiosk_id,omitempty"`
	Image      []byte `json:"image"`
	CapturedAt string `json:"captured_at,omitempty"`
}

// Ack is the response to an asynchronous submission.
type Ack struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds simulation counters.
type Stats struct {
	EventsGenerated int
	EventsSubmitted int
	EventsFailed    int

	Accepted  int
	Duplicate int
	Throttled int

	Verified  int
	Rejected  int
	Flagged   int
	Pending   int
	FastPath  int
	Escalated int

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}
