// Package mover abstracts the mailbox system that actually relocates
// mailboxes. The orchestrator only depends on the Mover interface.
package mover

import (
	"context"
	"fmt"
	"time"
)

// MailboxInfo is the read-path answer for one identity.
type MailboxInfo struct {
	Exists bool    `json:"exists"`
	SizeMB float64 `json:"size_mb"`
}

// MoveResult describes a completed move.
type MoveResult struct {
	ItemsMoved int   `json:"items_moved"`
	BytesMoved int64 `json:"bytes_moved"`
}

// Mover defines the operations available on a mailbox backend.
type Mover interface {
	// Lookup reports whether the mailbox exists and its size.
	Lookup(ctx context.Context, identity string) (MailboxInfo, error)

	// Move relocates the source mailbox to the target identity. It may take
	// a long time; implementations must honour ctx.
	Move(ctx context.Context, source, target string) (MoveResult, error)
}

// Pinger is implemented by backends that can check connectivity up front.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config selects and configures a backend.
type Config struct {
	Backend   string          `yaml:"backend"` // "simulated", "shell", "http" or "imap"
	Simulated SimulatorConfig `yaml:"simulated"`
	Shell     ShellConfig     `yaml:"shell"`
	HTTP      Connection      `yaml:"http"`
	IMAP      IMAPConfig      `yaml:"imap"`
}

// New creates the appropriate Mover implementation for cfg.
func New(cfg Config) (Mover, error) {
	switch cfg.Backend {
	case "", "simulated":
		return NewSimulator(cfg.Simulated), nil
	case "shell":
		return NewShellMover(cfg.Shell)
	case "http":
		return NewHTTPMover(&cfg.HTTP)
	case "imap":
		return NewIMAPMover(cfg.IMAP)
	default:
		return nil, fmt.Errorf("unknown mover backend %q", cfg.Backend)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
