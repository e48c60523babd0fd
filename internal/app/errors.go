package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrInvalidEvent  = errors.New("invalid boarding event")
	ErrBackpressure  = errors.New("backpressure")
	ErrNilDependency = errors.New("nil dependency")
)
