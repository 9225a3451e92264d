// Package runtime runs the engine on one dedicated thread and multiplexes
// tasks submitted from any goroutine onto it.
//
// Callers talk to the loop only through a bounded mailbox. The loop opens a
// frame per task, runs it, hands its offloaded calls to a bounded worker
// pool and resumes it when they complete. A periodic tick runs collector
// safepoints and engine events even while every task is waiting.
package runtime

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	goruntime "runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/funvibe/fxhost/internal/config"
	"github.com/funvibe/fxhost/internal/engine"
	"github.com/funvibe/fxhost/internal/journal"
	"github.com/funvibe/fxhost/internal/mailbox"
	"github.com/funvibe/fxhost/internal/offload"
	"github.com/funvibe/fxhost/pkg/rooting"
	"github.com/funvibe/fxhost/pkg/task"
)

// live guards the one runtime allowed per process.
var live atomic.Bool

// Options are the non-serializable parts of a runtime setup.
type Options struct {
	// Stdout receives engine println output.
	Stdout io.Writer
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Setup runs on the runtime thread before the bootstrap script, typically
	// to register natives.
	Setup func(*engine.Engine) error
}

type msgKind int

const (
	msgTask msgKind = iota
	msgInclude
	msgShutdown
)

type message struct {
	kind      msgKind
	id        uuid.UUID
	job       task.Job
	path      string
	reply     chan error
	submitted time.Time
}

// running is a task that has started and not finished.
type running struct {
	id        uuid.UUID
	job       task.Job
	frame     *rooting.Frame
	progress  task.Progress
	offloads  int
	submitted time.Time
}

// Runtime is the loop side. Everything but the atomics belongs to the
// runtime thread.
type Runtime struct {
	cfg     *config.Config
	opts    Options
	logger  *slog.Logger
	mailbox *mailbox.Mailbox[message]
	pool    *offload.Pool
	journal *journal.Journal

	engine *engine.Engine
	arena  *rooting.Arena
	global task.Global

	// waiting maps offload ids to the task suspended on them.
	waiting map[uuid.UUID]*running
	// current is the task whose Run or continuation is executing.
	current  *running
	lastTick time.Time
	draining bool

	state     atomic.Int32
	threadID  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	ticks     atomic.Int64
	resumeLag atomic.Int64

	done chan struct{}
	err  error
}

// Start validates cfg, starts the runtime thread and loads the bootstrap
// script. It fails with ErrAlreadyInitialized while another runtime is live.
func Start(cfg *config.Config, opts Options) (*Handle, *JoinHandle, error) {
	if cfg == nil {
		return nil, nil, errors.New("runtime: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if !live.CompareAndSwap(false, true) {
		return nil, nil, ErrAlreadyInitialized
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{
		cfg:     cfg,
		opts:    opts,
		logger:  logger.With("component", "runtime"),
		mailbox: mailbox.New[message](cfg.Backlog),
		pool:    offload.New(cfg.Workers, logger),
		waiting: make(map[uuid.UUID]*running),
		done:    make(chan struct{}),
	}
	if cfg.Journal != "" {
		j, err := journal.Open(cfg.Journal, logger)
		if err != nil {
			live.Store(false)
			return nil, nil, err
		}
		rt.journal = j
	}

	ready := make(chan error, 1)
	go rt.main(ready)
	if err := <-ready; err != nil {
		<-rt.done
		return nil, nil, err
	}
	return &Handle{rt: rt}, &JoinHandle{rt: rt}, nil
}

func (rt *Runtime) main(ready chan<- error) {
	goruntime.LockOSThread()
	defer goruntime.UnlockOSThread()
	defer func() {
		rt.setState(Stopped)
		live.Store(false)
		close(rt.done)
	}()
	rt.threadID.Store(int64(engine.ThreadID()))

	if err := rt.safeBoot(); err != nil {
		rt.logger.Error("initialization failed", "err", err)
		rt.shutdownPool()
		if rt.engine != nil {
			_ = rt.engine.Teardown()
		}
		if rt.journal != nil {
			_ = rt.journal.Close()
		}
		ready <- err
		return
	}
	ready <- nil
	rt.err = rt.loop()
}

// safeBoot turns a panic during startup, typically in Setup, into an
// error for Start.
func (rt *Runtime) safeBoot() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FatalError{Value: r, Stack: debug.Stack()}
		}
	}()
	return rt.boot()
}

func (rt *Runtime) boot() error {
	rt.engine = engine.New(engine.Config{
		Threads:     rt.cfg.Engine.Threads,
		GCThreshold: rt.cfg.Engine.GCThreshold,
		Stdout:      rt.opts.Stdout,
		Logger:      rt.logger,
	})
	rt.arena = rooting.NewArena(rt.engine, rt.cfg.ArenaSlots)
	if err := rt.engine.AddRootScanner(rt.arena); err != nil {
		return err
	}
	rt.global = task.NewGlobal(rt.engine)

	if rt.opts.Setup != nil {
		if err := rt.opts.Setup(rt.engine); err != nil {
			return fmt.Errorf("runtime: setup: %w", err)
		}
	}
	if err := rt.engine.Include(rt.cfg.Bootstrap); err != nil {
		return &BootstrapError{Path: rt.cfg.Bootstrap, Cause: err}
	}
	if _, err := rt.engine.Main().Submodule(config.HostModuleName); err != nil {
		return &BootstrapError{Path: rt.cfg.Bootstrap, Cause: err}
	}
	rt.logger.Debug("runtime started",
		"thread", rt.threadID.Load(),
		"workers", rt.cfg.Workers,
		"slots", rt.cfg.Slots,
		"tick", rt.cfg.Tick)
	return nil
}

func (rt *Runtime) loop() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = rt.fatal(r, debug.Stack())
		}
	}()

	ticker := time.NewTicker(rt.cfg.Tick)
	defer ticker.Stop()
	rt.lastTick = time.Now()

	inbox := rt.mailbox.Receive()
	for inbox != nil || len(rt.waiting) > 0 {
		rt.setState(rt.restState())
		select {
		case msg, ok := <-inbox:
			if !ok {
				inbox = nil
				rt.beginDrain("mailbox closed")
				continue
			}
			rt.setState(Running)
			rt.dispatch(msg)
		case c := <-rt.pool.Completions():
			rt.setState(Running)
			rt.complete(c)
		case <-ticker.C:
			rt.tick()
			continue
		}
		if time.Since(rt.lastTick) >= rt.cfg.Tick {
			rt.tick()
		}
	}

	rt.setState(Draining)
	rt.shutdownPool()
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.logger.Warn("closing journal", "err", err)
		}
	}
	if err := rt.engine.Teardown(); err != nil {
		return err
	}
	rt.logger.Debug("runtime stopped",
		"completed", rt.completed.Load(),
		"failed", rt.failed.Load())
	return nil
}

func (rt *Runtime) restState() State {
	if rt.draining {
		return Draining
	}
	return Idle
}

func (rt *Runtime) beginDrain(reason string) {
	if !rt.draining {
		rt.draining = true
		rt.logger.Debug("draining", "reason", reason, "queued", rt.mailbox.Len(), "waiting", len(rt.waiting))
	}
}

func (rt *Runtime) dispatch(msg message) {
	switch msg.kind {
	case msgTask:
		rt.start(msg)
	case msgInclude:
		err := rt.engine.Include(msg.path)
		if msg.reply != nil {
			msg.reply <- err
		} else if err != nil {
			rt.logger.Error("include failed", "path", msg.path, "err", err)
		}
	case msgShutdown:
		rt.mailbox.Close()
		rt.beginDrain("shutdown requested")
	}
}

func (rt *Runtime) start(msg message) {
	r := &running{id: msg.id, job: msg.job, submitted: msg.submitted}
	slots := msg.job.Slots()
	if slots <= 0 {
		slots = rt.cfg.Slots
	}
	frame, err := rt.arena.Open(slots)
	if err != nil {
		r.progress = msg.job.Abort(err)
		rt.finish(r)
		return
	}
	s, err := frame.Scope()
	if err != nil {
		frame.Close()
		r.progress = msg.job.Abort(err)
		rt.finish(r)
		return
	}
	r.frame = frame
	rt.current = r
	r.progress = msg.job.Run(rt.global, s)
	rt.advance(r)
}

// advance either parks r on its offload or finishes it.
func (rt *Runtime) advance(r *running) {
	if !r.progress.Suspended() {
		rt.finish(r)
		return
	}
	o := r.progress.Offload()
	if _, dup := rt.waiting[o.ID]; dup {
		r.progress = r.progress.Resume(rooting.Value{}, fmt.Errorf("runtime: offload %s is already awaited by another task", o.ID))
		rt.advance(r)
		return
	}
	if err := rt.pool.Submit(o.ID, o); err != nil {
		r.progress = r.progress.Resume(rooting.Value{}, err)
		rt.advance(r)
		return
	}
	r.offloads++
	rt.waiting[o.ID] = r
	rt.current = nil
}

func (rt *Runtime) complete(c offload.Completion) {
	r, ok := rt.waiting[c.ID]
	if !ok {
		rt.logger.Warn("completion for unknown offload", "id", c.ID)
		return
	}
	delete(rt.waiting, c.ID)
	rt.current = r
	rt.resumeLag.Store(int64(time.Since(c.Finished)))

	v, err := rt.rootResult(r, c)
	r.progress = r.progress.Resume(v, err)
	rt.advance(r)
}

// rootResult boxes an offload result in the innermost open scope of the
// task frame.
func (rt *Runtime) rootResult(r *running, c offload.Completion) (rooting.Value, error) {
	if c.Err != nil {
		return rooting.Value{}, c.Err
	}
	s := r.frame.Current()
	if s == nil {
		return rooting.Value{}, rooting.ErrScopeClosed
	}
	ref, err := rt.engine.Alloc(c.Value)
	if err != nil {
		return rooting.Value{}, err
	}
	return s.Root(ref)
}

func (rt *Runtime) finish(r *running) {
	rt.current = nil
	if r.frame != nil {
		r.frame.Close()
	}
	err := r.progress.Err()
	name := r.job.Name()
	if err != nil {
		rt.failed.Add(1)
	} else {
		rt.completed.Add(1)
	}
	if !r.progress.Deliver() {
		if err != nil {
			rt.logger.Warn("task failed", "task", name, "id", r.id, "err", err)
		} else {
			rt.logger.Debug("task finished without sink", "task", name, "id", r.id)
		}
	}
	rt.record(r, err)
}

func (rt *Runtime) record(r *running, err error) {
	if rt.journal == nil {
		return
	}
	e := journal.Entry{
		ID:        r.id,
		Name:      r.job.Name(),
		Status:    journal.StatusOK,
		Offloads:  r.offloads,
		Submitted: r.submitted,
		Finished:  time.Now(),
	}
	if err != nil {
		e.Status = journal.StatusFailed
		e.Error = err.Error()
	}
	rt.journal.Record(e)
}

func (rt *Runtime) tick() {
	prev := rt.State()
	rt.setState(Ticking)
	rt.ticks.Add(1)
	if _, err := rt.engine.Safepoint(); err != nil {
		rt.logger.Error("safepoint", "err", err)
	}
	if _, err := rt.engine.ProcessEvents(); err != nil {
		rt.logger.Error("engine events", "err", err)
	}
	rt.lastTick = time.Now()
	rt.setState(prev)
}

// fatal records the tasks abandoned by a panic on the runtime thread and
// releases what can be released without the engine.
func (rt *Runtime) fatal(v any, stack []byte) error {
	abandoned := make([]*running, 0, len(rt.waiting)+1)
	if rt.current != nil {
		abandoned = append(abandoned, rt.current)
	}
	for _, r := range rt.waiting {
		abandoned = append(abandoned, r)
	}
	lost := len(abandoned)
	rt.logger.Error("runtime thread died", "panic", v, "abandoned", lost)
	if rt.journal != nil {
		now := time.Now()
		for _, r := range abandoned {
			rt.journal.Record(journal.Entry{
				ID:        r.id,
				Name:      r.job.Name(),
				Status:    journal.StatusLost,
				Error:     fmt.Sprint(v),
				Offloads:  r.offloads,
				Submitted: r.submitted,
				Finished:  now,
			})
		}
	}
	rt.waiting = nil
	rt.current = nil
	rt.mailbox.Close()
	for msg := range rt.mailbox.Receive() {
		switch msg.kind {
		case msgTask:
			lost++
		case msgInclude:
			if msg.reply != nil {
				msg.reply <- fmt.Errorf("runtime: fatal: %v", v)
			}
		}
	}
	rt.pool.Abort()
	rt.shutdownPool()
	if rt.journal != nil {
		_ = rt.journal.Close()
	}
	_ = rt.engine.Teardown()
	return &FatalError{Value: v, Stack: stack, Lost: lost}
}

func (rt *Runtime) shutdownPool() {
	rt.pool.Close()
	for c := range rt.pool.Completions() {
		rt.logger.Debug("discarding completion", "id", c.ID, "err", c.Err)
	}
}

func (rt *Runtime) setState(s State) { rt.state.Store(int32(s)) }

// State returns the current loop state.
func (rt *Runtime) State() State { return State(rt.state.Load()) }

// Stats is a snapshot of loop counters.
type Stats struct {
	Completed int64
	Failed    int64
	Ticks     int64
	// ResumeLag is the delay between the last offload completing and its
	// task resuming.
	ResumeLag   time.Duration
	MaxInFlight int
	ThreadID    int
}

// Stats returns the loop counters. It is safe to call from any goroutine.
func (rt *Runtime) Stats() Stats {
	return Stats{
		Completed:   rt.completed.Load(),
		Failed:      rt.failed.Load(),
		Ticks:       rt.ticks.Load(),
		ResumeLag:   time.Duration(rt.resumeLag.Load()),
		MaxInFlight: rt.pool.MaxInFlight(),
		ThreadID:    int(rt.threadID.Load()),
	}
}
