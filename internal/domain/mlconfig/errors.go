package mlconfig

import (
	"errors"
	"fmt"
)

// Sentinel kinds for configuration errors.
var (
	ErrInvalidConfig   = errors.New("invalid model config")
	ErrNoActiveConfig  = errors.New("no active model config")
	ErrVersionNotFound = errors.New("model config version not found")
)

// ValidationError names the offending field of a rejected config.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap makes every ValidationError match ErrInvalidConfig.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }
