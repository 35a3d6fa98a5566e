package config

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rflorenc/mailbox-move-workbench/internal/mover"
	"github.com/rflorenc/mailbox-move-workbench/internal/store"
)

// MigrationConfig tunes the orchestrator and progress streams.
type MigrationConfig struct {
	// BatchDelay is the pause between batches. Negative disables it.
	BatchDelay       time.Duration `yaml:"batch_delay"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	LargeMailboxMB   float64       `yaml:"large_mailbox_mb"`
}

// Config holds all configuration (CLI flags + config file).
type Config struct {
	Listen    string          `yaml:"listen"`
	LogLevel  string          `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string          `yaml:"log_format"` // text or json
	Dev       bool            `yaml:"-"`
	DevServer string          `yaml:"dev_server"`
	Migration MigrationConfig `yaml:"migration"`
	Store     store.Config    `yaml:"store"`
	Mover     mover.Config    `yaml:"mover"`

	// internal: path to config file (from CLI flag)
	configFile string
}

// Parse reads CLI flags, then overlays config file values.
// CLI flags take precedence over config file values.
func Parse() *Config {
	c, err := ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return c
}

// ParseArgs is Parse for an explicit argument list.
func ParseArgs(args []string) (*Config, error) {
	c := &Config{}
	fs := flag.NewFlagSet("workbench", flag.ContinueOnError)
	fs.StringVar(&c.configFile, "config", "", "Path to config file (YAML)")
	fs.StringVar(&c.Listen, "listen", "", "HTTP listen address")
	fs.StringVar(&c.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.BoolVar(&c.Dev, "dev", false, "Dev mode (proxy frontend to a dev server)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load config file if specified
	if c.configFile != "" {
		if err := c.loadFile(c.configFile); err != nil {
			return nil, err
		}
	}

	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.DevServer == "" {
		c.DevServer = "http://localhost:5173"
	}
	if c.Migration.BatchDelay == 0 {
		c.Migration.BatchDelay = 2 * time.Second
	}
	if c.Migration.ProgressInterval <= 0 {
		c.Migration.ProgressInterval = time.Second
	}
	if c.Migration.LargeMailboxMB <= 0 {
		c.Migration.LargeMailboxMB = 10000
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Mover.Backend == "" {
		c.Mover.Backend = "simulated"
	}
}

// loadFile reads a YAML config file. Values from the file are only applied
// if the corresponding CLI flag was not explicitly set.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	// Only apply file values if CLI flag wasn't set
	if c.Listen == "" {
		c.Listen = file.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = file.LogLevel
	}

	// Everything else only comes from the config file
	c.LogFormat = file.LogFormat
	c.DevServer = file.DevServer
	c.Migration = file.Migration
	c.Store = file.Store
	c.Mover = file.Mover
	return nil
}

// Logger builds the process logger described by the config.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch c.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
