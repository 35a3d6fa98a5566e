// Package store holds migration sessions. The orchestrator is the only
// writer; progress and report consumers read snapshots.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rflorenc/mailbox-move-workbench/internal/models"
)

var (
	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session not found")
	// ErrExists is returned by Create when the id is already taken.
	ErrExists = errors.New("session already exists")
)

// MutateFunc changes a session in place during Update.
type MutateFunc func(s *models.MigrationSession) error

// Store is the process-wide mapping from session id to session state.
// Sessions are never deleted; they live as long as the backing keeps them.
type Store interface {
	// Create stores a new session.
	Create(ctx context.Context, s *models.MigrationSession) error

	// Get returns a snapshot of the session.
	Get(ctx context.Context, id string) (*models.MigrationSession, error)

	// Update runs fn against the current session and writes the result back
	// atomically, recomputing stats. It returns a snapshot of the new state.
	// If fn returns an error nothing is written.
	Update(ctx context.Context, id string, fn MutateFunc) (*models.MigrationSession, error)

	// List returns snapshots of all sessions, most recent first.
	List(ctx context.Context) ([]*models.MigrationSession, error)

	// Close releases backing resources.
	Close() error
}

// Config selects and configures a Store backing.
type Config struct {
	Backend    string        `yaml:"backend"` // "memory", "redis" or "sqlite"
	RedisURL   string        `yaml:"redis_url"`
	RedisTTL   time.Duration `yaml:"redis_ttl"` // 0 keeps keys forever
	SQLitePath string        `yaml:"sqlite_path"`
}

// New creates the Store named by cfg.Backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.RedisURL, cfg.RedisTTL)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
