package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/boardcheck/internal/domain/mlconfig"
)

// MemoryStore keeps versions in process memory. Values are cloned on the way
// in and out so callers can never alter a stored version.
type MemoryStore struct {
	mu       sync.RWMutex
	versions []mlconfig.ModelConfig // index i holds version i+1
	active   int
	opts     options
}

var _ mlconfig.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{opts: applyOptions(opts)}
}

// GetActive returns the active version.
func (s *MemoryStore) GetActive(_ context.Context) (mlconfig.ModelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == 0 {
		return mlconfig.ModelConfig{}, mlconfig.ErrNoActiveConfig
	}
	return s.view(s.active), nil
}

// Get returns one version.
func (s *MemoryStore) Get(_ context.Context, version int) (mlconfig.ModelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if version <= 0 || version > len(s.versions) {
		return mlconfig.ModelConfig{}, fmt.Errorf("%w: %d", mlconfig.ErrVersionNotFound, version)
	}
	return s.view(version), nil
}

// List returns every version in ascending order.
func (s *MemoryStore) List(_ context.Context) ([]mlconfig.ModelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]mlconfig.ModelConfig, 0, len(s.versions))
	for v := 1; v <= len(s.versions); v++ {
		out = append(out, s.view(v))
	}
	return out, nil
}

// Save appends cfg as the next version.
func (s *MemoryStore) Save(_ context.Context, cfg mlconfig.ModelConfig) (mlconfig.ModelConfig, error) {
	stored := cfg.Clone()
	stored.IsActive = false
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.opts.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored.Version = len(s.versions) + 1
	s.versions = append(s.versions, stored)
	return stored.Clone(), nil
}

// Activate makes version the only active one.
func (s *MemoryStore) Activate(_ context.Context, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version <= 0 || version > len(s.versions) {
		return fmt.Errorf("%w: %d", mlconfig.ErrVersionNotFound, version)
	}
	s.active = version
	return nil
}

// view must be called with mu held.
func (s *MemoryStore) view(version int) mlconfig.ModelConfig {
	out := s.versions[version-1].Clone()
	out.IsActive = version == s.active
	return out
}
