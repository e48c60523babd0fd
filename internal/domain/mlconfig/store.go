package mlconfig

import "context"

// Store persists config versions. Implementations assign versions starting at
// 1, never mutate a saved version, and flip the active flag atomically so that
// at most one version is active at any instant.
type Store interface {
	// GetActive returns the active version or ErrNoActiveConfig.
	GetActive(ctx context.Context) (ModelConfig, error)
	// Get returns one version or ErrVersionNotFound.
	Get(ctx context.Context, version int) (ModelConfig, error)
	// List returns every version in ascending order.
	List(ctx context.Context) ([]ModelConfig, error)
	// Save stores cfg as a new inactive version and returns it as stored.
	Save(ctx context.Context, cfg ModelConfig) (ModelConfig, error)
	// Activate makes version the only active one.
	Activate(ctx context.Context, version int) error
}

// Provider resolves the config a decision should use.
type Provider interface {
	Active(ctx context.Context) (ModelConfig, error)
}
