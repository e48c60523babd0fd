package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/okian/boardcheck/internal/domain/mlconfig"
	"github.com/okian/boardcheck/pkg/logger"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// activateLockKey is the pg_advisory_xact_lock key that serializes activations.
const activateLockKey = 0x62636667 // "bcfg"

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PostgresStore keeps versions in a PostgreSQL table. The activate flip runs
// in one transaction under an advisory lock, and a partial unique index keeps
// a second active row from ever being committed.
type PostgresStore struct {
	db    *sql.DB
	table string
	log   logger.Logger
	now   func() time.Time
}

var _ mlconfig.Store = (*PostgresStore)(nil)

// OpenPostgres opens a connection pool for dsn using the lib/pq driver.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresStore wraps db. Call Migrate once before use.
func NewPostgresStore(db *sql.DB, opts ...Option) (*PostgresStore, error) {
	if db == nil {
		return nil, ErrNilDependency
	}
	o := applyOptions(opts)
	if !tableName.MatchString(o.table) {
		return nil, fmt.Errorf("invalid table name %q", o.table)
	}
	return &PostgresStore{db: db, table: o.table, log: o.logger(), now: o.now}, nil
}

// Migrate creates the table and the single-active index when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			version     INTEGER GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			is_active   BOOLEAN     NOT NULL DEFAULT FALSE,
			description TEXT        NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL,
			body        JSONB       NOT NULL
		)`, s.table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_single_active ON %s (is_active) WHERE is_active`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.table, err)
		}
	}
	return nil
}

// GetActive returns the active version.
func (s *PostgresStore) GetActive(ctx context.Context) (mlconfig.ModelConfig, error) {
	q := fmt.Sprintf(`SELECT version, is_active, description, created_at, body FROM %s WHERE is_active`, s.table)
	cfg, err := scanConfig(s.db.QueryRowContext(ctx, q))
	if errors.Is(err, sql.ErrNoRows) {
		return mlconfig.ModelConfig{}, mlconfig.ErrNoActiveConfig
	}
	return cfg, err
}

// Get returns one version.
func (s *PostgresStore) Get(ctx context.Context, version int) (mlconfig.ModelConfig, error) {
	q := fmt.Sprintf(`SELECT version, is_active, description, created_at, body FROM %s WHERE version = $1`, s.table)
	cfg, err := scanConfig(s.db.QueryRowContext(ctx, q, version))
	if errors.Is(err, sql.ErrNoRows) {
		return mlconfig.ModelConfig{}, fmt.Errorf("%w: %d", mlconfig.ErrVersionNotFound, version)
	}
	return cfg, err
}

// List returns every version in ascending order.
func (s *PostgresStore) List(ctx context.Context) ([]mlconfig.ModelConfig, error) {
	q := fmt.Sprintf(`SELECT version, is_active, description, created_at, body FROM %s ORDER BY version`, s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	defer rows.Close()

	var out []mlconfig.ModelConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	return out, nil
}

// Save inserts cfg as a new inactive row; the identity column assigns the version.
func (s *PostgresStore) Save(ctx context.Context, cfg mlconfig.ModelConfig) (mlconfig.ModelConfig, error) {
	stored := cfg.Clone()
	stored.IsActive = false
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}
	body, err := json.Marshal(stored)
	if err != nil {
		return mlconfig.ModelConfig{}, fmt.Errorf("encode config: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO %s (is_active, description, created_at, body) VALUES (FALSE, $1, $2, $3) RETURNING version`, s.table)
	if err := s.db.QueryRowContext(ctx, q, stored.Description, stored.CreatedAt, body).Scan(&stored.Version); err != nil {
		return mlconfig.ModelConfig{}, fmt.Errorf("insert config: %w", err)
	}
	return stored, nil
}

// Activate flips the active row inside one transaction.
func (s *PostgresStore) Activate(ctx context.Context, version int) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Error(ctx, "rollback activate", logger.Error(rbErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, activateLockKey); err != nil {
		return fmt.Errorf("lock activate: %w", err)
	}

	var exists bool
	q := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE version = $1)`, s.table)
	if err = tx.QueryRowContext(ctx, q, version).Scan(&exists); err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if !exists {
		err = fmt.Errorf("%w: %d", mlconfig.ErrVersionNotFound, version)
		return err
	}

	q = fmt.Sprintf(`UPDATE %s SET is_active = FALSE WHERE is_active AND version <> $1`, s.table)
	if _, err = tx.ExecContext(ctx, q, version); err != nil {
		return fmt.Errorf("deactivate configs: %w", err)
	}
	q = fmt.Sprintf(`UPDATE %s SET is_active = TRUE WHERE version = $1`, s.table)
	if _, err = tx.ExecContext(ctx, q, version); err != nil {
		return fmt.Errorf("activate config: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit activate: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (mlconfig.ModelConfig, error) {
	var (
		version     int
		active      bool
		description string
		createdAt   time.Time
		body        []byte
	)
	if err := row.Scan(&version, &active, &description, &createdAt, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mlconfig.ModelConfig{}, err
		}
		return mlconfig.ModelConfig{}, fmt.Errorf("scan config: %w", err)
	}
	var cfg mlconfig.ModelConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return mlconfig.ModelConfig{}, fmt.Errorf("%w: version %d: %v", ErrCorruptRecord, version, err)
	}
	cfg.Version = version
	cfg.IsActive = active
	cfg.Description = description
	cfg.CreatedAt = createdAt.UTC()
	return cfg, nil
}
