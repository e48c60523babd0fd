package auditsink

import "errors"

// Sentinel kinds for audit sink errors.
var (
	ErrNotFound      = errors.New("audit record not found")
	ErrMissingID     = errors.New("audit record has no record_id")
	ErrConflict      = errors.New("audit record id reused with different content")
	ErrNilDependency = errors.New("audit sink dependency is nil")
)
