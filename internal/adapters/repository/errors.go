package repository

import "errors"

// Sentinel kinds for config store errors. Lookups report the mlconfig
// sentinels (ErrNoActiveConfig, ErrVersionNotFound) so callers need not know
// which backend is in use.
var (
	ErrCorruptRecord = errors.New("stored model config is corrupt")
	ErrActivateRace  = errors.New("concurrent activation, retry")
	ErrNilDependency = errors.New("config store dependency is nil")
)
