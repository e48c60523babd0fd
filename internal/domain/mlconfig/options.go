package mlconfig

import (
	"time"

	"github.com/okian/boardcheck/pkg/logger"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithBootstrap replaces the config written when the store has no active version.
func WithBootstrap(f func() ModelConfig) Option {
	return func(m *Manager) {
		if f != nil {
			m.bootstrap = f
		}
	}
}

// WithClock overrides the time source used to stamp CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}
