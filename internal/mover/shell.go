package mover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ShellConfig drives an external mailbox-management tool, e.g. a PowerShell
// script wrapping New-MoveRequest. Argument templates may contain
// {source}, {target} and {identity}. The command must print a JSON object
// on stdout: MailboxInfo for lookups, MoveResult for moves.
type ShellConfig struct {
	Command    string        `yaml:"command"`
	LookupArgs []string      `yaml:"lookup_args"`
	MoveArgs   []string      `yaml:"move_args"`
	Timeout    time.Duration `yaml:"timeout"` // per invocation, default 30m
}

// ShellMover implements Mover by shelling out.
type ShellMover struct {
	cfg ShellConfig
}

// NewShellMover validates cfg and creates a ShellMover.
func NewShellMover(cfg ShellConfig) (*ShellMover, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("shell mover: command is required")
	}
	if len(cfg.LookupArgs) == 0 || len(cfg.MoveArgs) == 0 {
		return nil, fmt.Errorf("shell mover: lookup_args and move_args are required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Minute
	}
	return &ShellMover{cfg: cfg}, nil
}

// Ping checks that the command can be found.
func (m *ShellMover) Ping(_ context.Context) error {
	_, err := exec.LookPath(m.cfg.Command)
	return err
}

func (m *ShellMover) Lookup(ctx context.Context, identity string) (MailboxInfo, error) {
	var info MailboxInfo
	args := expandArgs(m.cfg.LookupArgs, map[string]string{
		"{identity}": identity,
		"{source}":   identity,
	})
	if err := m.run(ctx, args, &info); err != nil {
		return MailboxInfo{}, fmt.Errorf("lookup %s: %w", identity, err)
	}
	return info, nil
}

func (m *ShellMover) Move(ctx context.Context, source, target string) (MoveResult, error) {
	var res MoveResult
	args := expandArgs(m.cfg.MoveArgs, map[string]string{
		"{identity}": source,
		"{source}":   source,
		"{target}":   target,
	})
	if err := m.run(ctx, args, &res); err != nil {
		return MoveResult{}, fmt.Errorf("move %s -> %s: %w", source, target, err)
	}
	return res, nil
}

func (m *ShellMover) run(ctx context.Context, args []string, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.cfg.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", m.cfg.Command, err, truncate(msg, 200))
		}
		return fmt.Errorf("%s: %w", m.cfg.Command, err)
	}
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), dest); err != nil {
		return fmt.Errorf("parsing %s output: %w", m.cfg.Command, err)
	}
	return nil
}

// expandArgs substitutes placeholders in each argument. Values are passed
// as discrete argv entries, never through a shell.
func expandArgs(tmpl []string, vars map[string]string) []string {
	out := make([]string, len(tmpl))
	for i, a := range tmpl {
		for k, v := range vars {
			a = strings.ReplaceAll(a, k, v)
		}
		out[i] = a
	}
	return out
}
