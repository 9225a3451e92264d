// Package config holds the runtime configuration of fxhost.
//
// A configuration is usually read from fxhost.yaml:
//
//	backlog: 16
//	workers: 2
//	slots: 16
//	tick: 1ms
//	bootstrap: scripts/bootstrap.fx
//	engine:
//	  threads: 4
//
// Every field except bootstrap has a default. Validation happens once, before the
// runtime thread starts; an invalid combination fails initialization instead of
// being silently adjusted.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level fxhost.yaml configuration.
type Config struct {
	// Backlog is the capacity of the mailbox between callers and the runtime
	// thread. Submissions beyond it fail immediately.
	Backlog int `yaml:"backlog"`

	// Workers is the number of offloaded calls that may run at once. It must
	// not exceed Engine.Threads.
	Workers int `yaml:"workers"`

	// Slots is the default root-slot capacity of the frame opened for a task
	// that does not declare its own budget.
	Slots int `yaml:"slots"`

	// ArenaSlots is the total number of root slots shared by all live frames.
	ArenaSlots int `yaml:"arena_slots"`

	// Tick is the maintenance interval: collector safepoints and engine events
	// run at least this often, even when the runtime thread is otherwise idle.
	Tick time.Duration `yaml:"tick"`

	// Bootstrap is the path of the support script loaded before any task runs.
	// Relative paths are resolved against the config file directory.
	Bootstrap string `yaml:"bootstrap"`

	// Engine configures the embedded interpreter.
	Engine EngineConfig `yaml:"engine"`

	// Journal is an optional SQLite database recording task outcomes.
	Journal string `yaml:"journal,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`
}

// EngineConfig configures the embedded interpreter.
type EngineConfig struct {
	// Threads is the engine's own parallelism. Defaults to the number of CPUs;
	// FXHOST_NUM_THREADS overrides the file value.
	Threads int `yaml:"threads"`

	// GCThreshold is the number of allocations between safepoint collections.
	GCThreshold int `yaml:"gc_threshold"`
}

// Default returns a configuration with every default applied and the given
// bootstrap path.
func Default(bootstrap string) *Config {
	cfg := &Config{Bootstrap: bootstrap}
	cfg.setDefaults()
	return cfg
}

// LoadConfig reads and parses an fxhost.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data, path)
	if err != nil {
		return nil, err
	}
	if cfg.Bootstrap != "" && !filepath.IsAbs(cfg.Bootstrap) {
		cfg.Bootstrap = filepath.Join(filepath.Dir(path), cfg.Bootstrap)
	}
	if cfg.Journal != "" && !filepath.IsAbs(cfg.Journal) {
		cfg.Journal = filepath.Join(filepath.Dir(path), cfg.Journal)
	}
	return cfg, nil
}

// ParseConfig parses fxhost.yaml content from bytes.
// The path argument is used only for error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.setDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// FindConfig searches for fxhost.yaml starting from dir and walking up
// to parent directories.
// Returns the path to the config file and nil error if found,
// or empty string and nil error if not found.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		for _, name := range ConfigFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) setDefaults() {
	if c.Backlog == 0 {
		c.Backlog = DefaultBacklog
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.Slots == 0 {
		c.Slots = DefaultSlots
	}
	if c.ArenaSlots == 0 {
		c.ArenaSlots = DefaultArenaSlots
	}
	if c.Tick == 0 {
		c.Tick = DefaultTick
	}
	if c.Engine.Threads == 0 {
		c.Engine.Threads = runtime.NumCPU()
	}
	if c.Engine.GCThreshold == 0 {
		c.Engine.GCThreshold = DefaultGCThreshold
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

func (c *Config) applyEnv() error {
	raw, ok := os.LookupEnv(ThreadsEnvVar)
	if !ok || raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s=%q: not an integer", ThreadsEnvVar, raw)
	}
	c.Engine.Threads = n
	return nil
}

// Validate checks the configuration for invalid values and combinations.
func (c *Config) Validate() error {
	switch {
	case c.Backlog < 1:
		return fmt.Errorf("config: backlog must be at least 1, got %d", c.Backlog)
	case c.Workers < 1:
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	case c.Engine.Threads < 1:
		return fmt.Errorf("config: engine.threads must be at least 1, got %d", c.Engine.Threads)
	case c.Workers > c.Engine.Threads:
		return fmt.Errorf("config: workers (%d) exceeds engine.threads (%d)", c.Workers, c.Engine.Threads)
	case c.Slots < 1:
		return fmt.Errorf("config: slots must be at least 1, got %d", c.Slots)
	case c.ArenaSlots < c.Slots:
		return fmt.Errorf("config: arena_slots (%d) is smaller than slots (%d)", c.ArenaSlots, c.Slots)
	case c.Tick <= 0:
		return fmt.Errorf("config: tick must be positive, got %s", c.Tick)
	case c.Engine.GCThreshold < 1:
		return fmt.Errorf("config: engine.gc_threshold must be at least 1, got %d", c.Engine.GCThreshold)
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	if c.Bootstrap == "" {
		return fmt.Errorf("config: bootstrap is required")
	}
	info, err := os.Stat(c.Bootstrap)
	if err != nil {
		return fmt.Errorf("config: bootstrap: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: bootstrap %s is a directory", c.Bootstrap)
	}
	if !IsSourceFile(c.Bootstrap) {
		return fmt.Errorf("config: bootstrap %s is not a source file (%s)", c.Bootstrap, strings.Join(SourceFileExtensions, ", "))
	}
	return nil
}

// ParseLogLevel maps a log_level value to a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: unknown log_level %q", level)
}
