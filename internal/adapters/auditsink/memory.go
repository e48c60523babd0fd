package auditsink

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/okian/boardcheck/internal/domain/audit"
)

// Memory keeps encoded records in process memory.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]byte
	order   []string
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string][]byte)}
}

// Write stores rec once. A repeat with identical content is accepted.
func (m *Memory) Write(_ context.Context, rec audit.Record) error {
	if rec.RecordID == "" {
		return ErrMissingID
	}
	data, err := audit.Marshal(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.records[rec.RecordID]; ok {
		if bytes.Equal(prev, data) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrConflict, rec.RecordID)
	}
	m.records[rec.RecordID] = data
	m.order = append(m.order, rec.RecordID)
	return nil
}

// Get decodes the stored record.
func (m *Memory) Get(_ context.Context, recordID string) (audit.Record, error) {
	m.mu.RLock()
	data, ok := m.records[recordID]
	m.mu.RUnlock()
	if !ok {
		return audit.Record{}, fmt.Errorf("%w: %s", ErrNotFound, recordID)
	}
	return audit.Unmarshal(data)
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}
