package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/boardcheck/internal/domain/mlconfig"
	"github.com/okian/boardcheck/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const activateAttempts = 5

// RedisStore keeps versions as write-once JSON values. The active version is
// a single key, so a flip is one atomic SET performed under WATCH.
//
// Keys (under the prefix):
//
//	seq       INCR counter assigning versions
//	v:<n>     JSON body of version n
//	versions  sorted set of version numbers
//	active    active version number
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	log    logger.Logger
	now    func() time.Time
}

var _ mlconfig.Store = (*RedisStore)(nil)

// NewRedisStore wraps client.
func NewRedisStore(client redis.UniversalClient, opts ...Option) (*RedisStore, error) {
	if client == nil {
		return nil, ErrNilDependency
	}
	o := applyOptions(opts)
	return &RedisStore{client: client, prefix: o.keyPrefix, log: o.logger(), now: o.now}, nil
}

func (s *RedisStore) key(parts ...string) string {
	k := s.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func (s *RedisStore) versionKey(version int) string {
	return s.key("v", strconv.Itoa(version))
}

func (s *RedisStore) activeVersion(ctx context.Context) (int, error) {
	v, err := s.client.Get(ctx, s.key("active")).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read active version: %w", err)
	}
	return v, nil
}

// GetActive returns the active version.
func (s *RedisStore) GetActive(ctx context.Context) (mlconfig.ModelConfig, error) {
	active, err := s.activeVersion(ctx)
	if err != nil {
		return mlconfig.ModelConfig{}, err
	}
	if active == 0 {
		return mlconfig.ModelConfig{}, mlconfig.ErrNoActiveConfig
	}
	return s.load(ctx, active, active)
}

// Get returns one version.
func (s *RedisStore) Get(ctx context.Context, version int) (mlconfig.ModelConfig, error) {
	active, err := s.activeVersion(ctx)
	if err != nil {
		return mlconfig.ModelConfig{}, err
	}
	return s.load(ctx, version, active)
}

// List returns every version in ascending order.
func (s *RedisStore) List(ctx context.Context) ([]mlconfig.ModelConfig, error) {
	active, err := s.activeVersion(ctx)
	if err != nil {
		return nil, err
	}
	members, err := s.client.ZRange(ctx, s.key("versions"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	out := make([]mlconfig.ModelConfig, 0, len(members))
	for _, m := range members {
		v, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("%w: version member %q", ErrCorruptRecord, m)
		}
		cfg, err := s.load(ctx, v, active)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Save assigns the next version with INCR and writes it once.
func (s *RedisStore) Save(ctx context.Context, cfg mlconfig.ModelConfig) (mlconfig.ModelConfig, error) {
	n, err := s.client.Incr(ctx, s.key("seq")).Result()
	if err != nil {
		return mlconfig.ModelConfig{}, fmt.Errorf("assign version: %w", err)
	}
	stored := cfg.Clone()
	stored.Version = int(n)
	stored.IsActive = false
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}
	body, err := json.Marshal(stored)
	if err != nil {
		return mlconfig.ModelConfig{}, fmt.Errorf("encode config: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, s.versionKey(stored.Version), body, 0)
		pipe.ZAdd(ctx, s.key("versions"), redis.Z{Score: float64(stored.Version), Member: strconv.Itoa(stored.Version)})
		return nil
	})
	if err != nil {
		return mlconfig.ModelConfig{}, fmt.Errorf("write version %d: %w", stored.Version, err)
	}
	return stored, nil
}

// Activate points the active key at version. The version key is watched so a
// concurrent change aborts the transaction; it is retried a few times.
func (s *RedisStore) Activate(ctx context.Context, version int) error {
	vk := s.versionKey(version)
	ak := s.key("active")
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, vk).Result()
		if err != nil {
			return fmt.Errorf("check version: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %d", mlconfig.ErrVersionNotFound, version)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, ak, version, 0)
			return nil
		})
		return err
	}
	for i := 0; i < activateAttempts; i++ {
		err := s.client.Watch(ctx, txf, vk, ak)
		if errors.Is(err, redis.TxFailedErr) {
			s.log.Debug(ctx, "activate watch conflict", logger.Int("version", version), logger.Int("attempt", i+1))
			continue
		}
		return err
	}
	return fmt.Errorf("%w: version %d", ErrActivateRace, version)
}

func (s *RedisStore) load(ctx context.Context, version, active int) (mlconfig.ModelConfig, error) {
	body, err := s.client.Get(ctx, s.versionKey(version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return mlconfig.ModelConfig{}, fmt.Errorf("%w: %d", mlconfig.ErrVersionNotFound, version)
	}
	if err != nil {
		return mlconfig.ModelConfig{}, fmt.Errorf("read version %d: %w", version, err)
	}
	var cfg mlconfig.ModelConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return mlconfig.ModelConfig{}, fmt.Errorf("%w: version %d: %v", ErrCorruptRecord, version, err)
	}
	cfg.Version = version
	cfg.IsActive = version == active
	return cfg, nil
}
