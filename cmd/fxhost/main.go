package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/funvibe/fxhost/internal/config"
	"github.com/funvibe/fxhost/pkg/host"
	"github.com/funvibe/fxhost/pkg/task"
)

const usage = `Usage: fxhost [options] [module.fx]

Starts the runtime, includes module.fx (default scripts/MyModule.fx) and runs
MyModule.complexfunc(4, iters) and MyModule.complexfunc(6, iters) as two
concurrent tasks.

Options:
  -config <path>    configuration file (default: fxhost.yaml found upward from .)
  -iters <n>        iterations per task (default 5000000)
  -journal <path>   record task outcomes in a SQLite journal
  -debug            debug logging
  -help             show this help
`

type options struct {
	configPath string
	module     string
	iters      int
	journal    string
	debug      bool
	help       bool
}

func parseArgs(args []string) (*options, error) {
	opts := &options{iters: 5000000}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		value := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			i++
			return args[i], nil
		}
		switch arg {
		case "-h", "-help", "--help":
			opts.help = true
		case "-debug", "--debug":
			opts.debug = true
		case "-config", "--config":
			v, err := value()
			if err != nil {
				return nil, err
			}
			opts.configPath = v
		case "-journal", "--journal":
			v, err := value()
			if err != nil {
				return nil, err
			}
			opts.journal = v
		case "-iters", "--iters":
			v, err := value()
			if err != nil {
				return nil, err
			}
			n, err := strconv.Atoi(strings.ReplaceAll(v, "_", ""))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid -iters %q", v)
			}
			opts.iters = n
		default:
			if strings.HasPrefix(arg, "-") {
				return nil, fmt.Errorf("unknown option %s", arg)
			}
			if opts.module != "" {
				return nil, fmt.Errorf("unexpected argument %s", arg)
			}
			opts.module = arg
		}
	}
	return opts, nil
}

func loadConfig(opts *options) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		if path, err = config.FindConfig(wd); err != nil {
			return nil, err
		}
	}
	var cfg *config.Config
	if path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default(filepath.Join("scripts", "bootstrap.fx"))
	}
	if opts.journal != "" {
		cfg.Journal = opts.journal
	}
	if opts.debug {
		cfg.LogLevel = "debug"
	}
	if opts.module == "" {
		opts.module = filepath.Join(filepath.Dir(cfg.Bootstrap), "MyModule.fx")
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := config.ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// run starts the runtime, runs both tasks and prints their results to out.
func run(opts *options, out, errOut io.Writer, color bool) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := newLogger(errOut, cfg.LogLevel)
	if err != nil {
		return err
	}

	h, join, err := host.Init(cfg, host.WithStdout(out), host.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("could not init runtime: %w", err)
	}
	// Closing the only handle shuts the runtime down.
	defer h.Close()

	if err := h.TryInclude(opts.module); err != nil {
		return err
	}

	first := make(chan task.Result[float64], 1)
	second := make(chan task.Result[float64], 1)
	if err := host.Submit[float64](h, newComplexTask(4, opts.iters, first)); err != nil {
		return err
	}
	if err := host.Submit[float64](h, newComplexTask(6, opts.iters, second)); err != nil {
		return err
	}

	start := time.Now()
	var errs []error
	for i, ch := range []chan task.Result[float64]{first, second} {
		var r task.Result[float64]
		select {
		case r = <-ch:
		case <-join.Done():
			// The runtime died before delivering, Join reports why.
			errs = append(errs, fmt.Errorf("task %d: no result", i+1))
			continue
		}
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("task %d: %w", i+1, r.Err))
			fmt.Fprintf(out, "Result of %s task: %s\n", ordinal(i), paint(color, red, r.Err.Error()))
			continue
		}
		fmt.Fprintf(out, "Result of %s task: %s\n", ordinal(i), paint(color, green, strconv.FormatFloat(r.Value, 'g', -1, 64)))
	}
	logger.Debug("tasks finished", "elapsed", time.Since(start))

	h.Close()
	if err := join.Join(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func ordinal(i int) string {
	if i == 0 {
		return "first"
	}
	return "second"
}

const (
	green = "\033[32m"
	red   = "\033[31m"
	reset = "\033[0m"
)

func paint(color bool, code, s string) string {
	if !color {
		return s
	}
	return code + s + reset
}

func colorEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n%s", err, usage)
		os.Exit(2)
	}
	if opts.help {
		fmt.Print(usage)
		return
	}
	if err := run(opts, os.Stdout, os.Stderr, colorEnabled()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
