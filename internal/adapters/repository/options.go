// Package repository holds the ModelConfig stores: in-memory, PostgreSQL and
// Redis. Every store keeps historical versions immutable and guarantees at
// most one active version.
package repository

import (
	"time"

	"github.com/okian/boardcheck/pkg/logger"
)

// Option configures the SQL and Redis stores.
type Option func(*options)

type options struct {
	log       logger.Logger
	keyPrefix string
	table     string
	now       func() time.Time
}

func defaultOptions() options {
	return options{
		keyPrefix: "boardcheck:mlconfig:",
		table:     "model_configs",
		now:       time.Now,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) logger() logger.Logger {
	if o.log != nil {
		return o.log
	}
	return logger.Get().Named("config_store")
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithKeyPrefix sets the Redis key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithTable sets the PostgreSQL table name.
func WithTable(table string) Option {
	return func(o *options) {
		if table != "" {
			o.table = table
		}
	}
}

// WithClock overrides the time source used when a saved config has no CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
