// Package kv defines the key-value contract the analysis cache persists through,
// with filesystem, SQLite and Redis backends.
package kv

import (
	"context"
	"fmt"
)

// Drivers accepted by Open.
const (
	DriverFS     = "fs"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Store is a flat key-value store. Keys are slash-separated paths such as
// "analysis/global". Values are opaque bytes.
type Store interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Put replaces the value for key.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists every key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Close releases the backend.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver   string
	Path     string
	RedisURL string
}

// Open returns the backend named by cfg.Driver.
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFS, "":
		return NewFS(cfg.Path)
	case DriverSQLite:
		return OpenSQLite(cfg.Path)
	case DriverRedis:
		return OpenRedis(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("kv: unknown driver %q", cfg.Driver)
	}
}
