package mlconfig

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/boardcheck/pkg/logger"
	"github.com/okian/boardcheck/pkg/metrics"
)

// Manager is the admin surface over a Store and the Provider used by the
// decision path. Active bootstraps the default config when the store has none.
type Manager struct {
	store     Store
	log       logger.Logger
	bootstrap func() ModelConfig
	now       func() time.Time

	// bootMu serializes bootstrap inside this process only. Reads of an
	// existing active config never take it.
	bootMu sync.Mutex
}

var _ Provider = (*Manager)(nil)

// NewManager builds a Manager over store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		log:       logger.Get().Named("mlconfig"),
		bootstrap: Default,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Active returns the active config, creating and activating the bootstrap
// default when none exists. Two processes racing on an empty store may both
// bootstrap; the later activation wins and both versions remain resolvable.
func (m *Manager) Active(ctx context.Context) (ModelConfig, error) {
	cfg, err := m.store.GetActive(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, ErrNoActiveConfig) {
		return ModelConfig{}, fmt.Errorf("get active config: %w", err)
	}

	m.bootMu.Lock()
	defer m.bootMu.Unlock()

	if cfg, err = m.store.GetActive(ctx); err == nil {
		return cfg, nil
	} else if !errors.Is(err, ErrNoActiveConfig) {
		return ModelConfig{}, fmt.Errorf("get active config: %w", err)
	}

	saved, err := m.Create(ctx, m.bootstrap())
	if err != nil {
		return ModelConfig{}, fmt.Errorf("bootstrap default config: %w", err)
	}
	if err := m.store.Activate(ctx, saved.Version); err != nil {
		return ModelConfig{}, fmt.Errorf("activate bootstrap config: %w", err)
	}
	saved.IsActive = true
	metrics.RecordConfigBootstrap()
	metrics.UpdateActiveConfigVersion(saved.Version)
	m.log.Warn(ctx, "no active model config, bootstrapped default", logger.Int("version", saved.Version))
	return saved, nil
}

// Get returns one version.
func (m *Manager) Get(ctx context.Context, version int) (ModelConfig, error) {
	if version <= 0 {
		return ModelConfig{}, fmt.Errorf("%w: %d", ErrVersionNotFound, version)
	}
	return m.store.Get(ctx, version)
}

// List returns every version in ascending order.
func (m *Manager) List(ctx context.Context) ([]ModelConfig, error) {
	return m.store.List(ctx)
}

// Create validates draft and saves it as a new inactive version.
func (m *Manager) Create(ctx context.Context, draft ModelConfig) (ModelConfig, error) {
	cfg := draft.Draft()
	if err := cfg.Validate(); err != nil {
		metrics.RecordConfigRejection()
		m.log.Warn(ctx, "rejected model config", logger.Error(err))
		return ModelConfig{}, err
	}
	cfg.CreatedAt = m.now().UTC()
	saved, err := m.store.Save(ctx, cfg)
	if err != nil {
		return ModelConfig{}, fmt.Errorf("save config: %w", err)
	}
	m.log.Info(ctx, "created model config", logger.Int("version", saved.Version),
		logger.String("description", saved.Description))
	return saved, nil
}

// Duplicate copies version into a new inactive version. edit, when non-nil,
// changes the copy before it is validated and saved; the source version is
// never touched.
func (m *Manager) Duplicate(ctx context.Context, version int, edit func(*ModelConfig)) (ModelConfig, error) {
	src, err := m.Get(ctx, version)
	if err != nil {
		return ModelConfig{}, err
	}
	cp := src.Draft()
	cp.Description = fmt.Sprintf("copy of v%d", version)
	if edit != nil {
		edit(&cp)
	}
	return m.Create(ctx, cp)
}

// Activate re-validates version and makes it the only active one. An invalid
// stored config is refused so the engine never runs with it.
func (m *Manager) Activate(ctx context.Context, version int) error {
	cfg, err := m.Get(ctx, version)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		metrics.RecordConfigRejection()
		return fmt.Errorf("activate v%d: %w", version, err)
	}
	if err := m.store.Activate(ctx, version); err != nil {
		return fmt.Errorf("activate v%d: %w", version, err)
	}
	metrics.RecordConfigActivation()
	metrics.UpdateActiveConfigVersion(version)
	m.log.Info(ctx, "activated model config", logger.Int("version", version))
	return nil
}
