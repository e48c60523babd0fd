package consensus

import "errors"

// Sentinel kinds for consensus errors.
var (
	// ErrInsufficientData means no usable report was supplied. Callers record
	// the event as PENDING for manual resolution.
	ErrInsufficientData = errors.New("insufficient data for a decision")
)
