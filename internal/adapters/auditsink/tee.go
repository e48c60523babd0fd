package auditsink

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/boardcheck/internal/domain/audit"
)

// Tee writes to a primary store and then to archive sinks. Reads go to the
// primary. An archive failure is reported after the primary write succeeded;
// retrying the whole Tee is safe because every sink is idempotent.
type Tee struct {
	primary  Store
	archives []Sink
}

var _ Store = (*Tee)(nil)

// NewTee builds a Tee.
func NewTee(primary Store, archives ...Sink) (*Tee, error) {
	if primary == nil {
		return nil, ErrNilDependency
	}
	return &Tee{primary: primary, archives: archives}, nil
}

// Write stores rec in the primary, then in every archive.
func (t *Tee) Write(ctx context.Context, rec audit.Record) error {
	if err := t.primary.Write(ctx, rec); err != nil {
		return fmt.Errorf("primary audit write: %w", err)
	}
	var errs []error
	for _, a := range t.archives {
		if err := a.Write(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("archive audit write: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Get reads from the primary.
func (t *Tee) Get(ctx context.Context, recordID string) (audit.Record, error) {
	return t.primary.Get(ctx, recordID)
}
