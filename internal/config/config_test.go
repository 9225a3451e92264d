package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeBootstrap(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "bootstrap.fx")
	if err := os.WriteFile(path, []byte("module Host {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseConfig_ValidMinimal(t *testing.T) {
	t.Setenv(ThreadsEnvVar, "")
	yaml := `
bootstrap: bootstrap.fx
`
	cfg, err := ParseConfig([]byte(yaml), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backlog != DefaultBacklog {
		t.Errorf("backlog = %d, want %d", cfg.Backlog, DefaultBacklog)
	}
	if cfg.Workers != DefaultWorkers {
		t.Errorf("workers = %d, want %d", cfg.Workers, DefaultWorkers)
	}
	if cfg.Slots != DefaultSlots {
		t.Errorf("slots = %d, want %d", cfg.Slots, DefaultSlots)
	}
	if cfg.Tick != DefaultTick {
		t.Errorf("tick = %s, want %s", cfg.Tick, DefaultTick)
	}
	if cfg.Engine.Threads < 1 {
		t.Errorf("engine.threads = %d, want >= 1", cfg.Engine.Threads)
	}
}

func TestParseConfig_AllFields(t *testing.T) {
	t.Setenv(ThreadsEnvVar, "")
	yaml := `
backlog: 32
workers: 3
slots: 64
arena_slots: 512
tick: 5ms
bootstrap: scripts/bootstrap.fx
journal: runs.db
log_level: debug
engine:
  threads: 8
  gc_threshold: 100
`
	cfg, err := ParseConfig([]byte(yaml), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backlog != 32 || cfg.Workers != 3 || cfg.Slots != 64 || cfg.ArenaSlots != 512 {
		t.Errorf("unexpected sizes: %+v", cfg)
	}
	if cfg.Tick != 5*time.Millisecond {
		t.Errorf("tick = %s, want 5ms", cfg.Tick)
	}
	if cfg.Engine.Threads != 8 || cfg.Engine.GCThreshold != 100 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Journal != "runs.db" {
		t.Errorf("journal = %q, want runs.db", cfg.Journal)
	}
}

func TestParseConfig_EnvOverridesThreads(t *testing.T) {
	t.Setenv(ThreadsEnvVar, "3")
	cfg, err := ParseConfig([]byte("engine:\n  threads: 12\n"), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.Threads != 3 {
		t.Errorf("engine.threads = %d, want 3", cfg.Engine.Threads)
	}
}

func TestParseConfig_BadEnv(t *testing.T) {
	t.Setenv(ThreadsEnvVar, "many")
	_, err := ParseConfig([]byte("backlog: 1\n"), "test.yaml")
	if err == nil || !strings.Contains(err.Error(), ThreadsEnvVar) {
		t.Fatalf("expected env error, got %v", err)
	}
}

func TestParseConfig_Malformed(t *testing.T) {
	_, err := ParseConfig([]byte("backlog: [1, 2"), "broken.yaml")
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "broken.yaml") {
		t.Errorf("error should name the file, got: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv(ThreadsEnvVar, "")
	dir := t.TempDir()
	bootstrap := writeBootstrap(t, dir)

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero backlog", func(c *Config) { c.Backlog = -1 }, "backlog"},
		{"zero workers", func(c *Config) { c.Workers = -2 }, "workers"},
		{"workers exceed threads", func(c *Config) { c.Engine.Threads = 2; c.Workers = 3 }, "exceeds engine.threads"},
		{"workers equal threads", func(c *Config) { c.Engine.Threads = 2; c.Workers = 2 }, ""},
		{"tiny arena", func(c *Config) { c.Slots = 32; c.ArenaSlots = 16 }, "arena_slots"},
		{"negative tick", func(c *Config) { c.Tick = -time.Second }, "tick"},
		{"missing bootstrap", func(c *Config) { c.Bootstrap = "" }, "bootstrap is required"},
		{"absent bootstrap", func(c *Config) { c.Bootstrap = filepath.Join(dir, "nope.fx") }, "bootstrap"},
		{"bootstrap dir", func(c *Config) { c.Bootstrap = dir }, "directory"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(bootstrap)
			cfg.Engine.Threads = 4
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_ResolvesRelativePaths(t *testing.T) {
	t.Setenv(ThreadsEnvVar, "")
	dir := t.TempDir()
	writeBootstrap(t, dir)
	path := filepath.Join(dir, "fxhost.yaml")
	if err := os.WriteFile(path, []byte("bootstrap: bootstrap.fx\njournal: j.db\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bootstrap != filepath.Join(dir, "bootstrap.fx") {
		t.Errorf("bootstrap = %q", cfg.Bootstrap)
	}
	if cfg.Journal != filepath.Join(dir, "j.db") {
		t.Errorf("journal = %q", cfg.Journal)
	}
	cfg.Engine.Threads = cfg.Workers
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, "fxhost.yml")
	if err := os.WriteFile(want, []byte("backlog: 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := FindConfig(nested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("FindConfig = %q, want %q", got, want)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
