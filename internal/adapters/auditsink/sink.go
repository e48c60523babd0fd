// Package auditsink persists DecisionAuditRecords. Every sink is write-once
// per record id: writing the same id again is a no-op, so callers may retry
// freely. Records are encoded only through the audit package.
package auditsink

import (
	"context"

	"github.com/okian/boardcheck/internal/domain/audit"
)

// Sink accepts finished records.
type Sink interface {
	Write(ctx context.Context, rec audit.Record) error
}

// Reader looks records up by id.
type Reader interface {
	Get(ctx context.Context, recordID string) (audit.Record, error)
}

// Store is a Sink that can also be read back.
type Store interface {
	Sink
	Reader
}
