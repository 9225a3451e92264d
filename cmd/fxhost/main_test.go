package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		args    []string
		want    options
		wantErr bool
	}{
		{nil, options{iters: 5000000}, false},
		{[]string{"-iters", "1_000", "mod.fx"}, options{iters: 1000, module: "mod.fx"}, false},
		{[]string{"-config", "c.yaml", "-debug", "-journal", "j.db"}, options{iters: 5000000, configPath: "c.yaml", debug: true, journal: "j.db"}, false},
		{[]string{"--help"}, options{iters: 5000000, help: true}, false},
		{[]string{"-iters"}, options{}, true},
		{[]string{"-iters", "-3"}, options{}, true},
		{[]string{"-bogus"}, options{}, true},
		{[]string{"a.fx", "b.fx"}, options{}, true},
	}
	for _, tt := range tests {
		got, err := parseArgs(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseArgs(%q) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if err == nil && *got != tt.want {
			t.Errorf("parseArgs(%q) = %+v, want %+v", tt.args, *got, tt.want)
		}
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	scripts := filepath.Join("..", "..", "scripts")
	for _, name := range []string{"bootstrap.fx", "MyModule.fx"} {
		data, err := os.ReadFile(filepath.Join(scripts, name))
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfgPath := filepath.Join(dir, "fxhost.yaml")
	cfg := "bootstrap: bootstrap.fx\nworkers: 2\nengine:\n  threads: 2\nlog_level: error\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	opts := &options{configPath: cfgPath, iters: 1000, journal: filepath.Join(dir, "journal.db")}
	if err := run(opts, &out, &errOut, false); err != nil {
		t.Fatalf("run: %v\n%s", err, errOut.String())
	}
	want := "Result of first task: 16000\nResult of second task: 36000\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if _, err := os.Stat(opts.journal); err != nil {
		t.Errorf("journal not written: %v", err)
	}
}

func TestRunMissingModule(t *testing.T) {
	dir := t.TempDir()
	boot := filepath.Join(dir, "bootstrap.fx")
	if err := os.WriteFile(boot, []byte("module Host {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "fxhost.yaml")
	if err := os.WriteFile(cfgPath, []byte("bootstrap: bootstrap.fx\nworkers: 1\nengine:\n  threads: 1\nlog_level: error\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	err := run(&options{configPath: cfgPath, iters: 10}, &out, &errOut, false)
	if err == nil || !strings.Contains(err.Error(), "MyModule") {
		t.Fatalf("expected a missing module error, got %v", err)
	}
}
