package runtime

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/funvibe/fxhost/internal/mailbox"
	"github.com/funvibe/fxhost/pkg/task"
)

// Handle is a producer end of the runtime mailbox. It is safe for
// concurrent use. Each Handle, including clones, must be closed; closing
// the last one shuts the runtime down gracefully.
type Handle struct {
	rt     *Runtime
	closed atomic.Bool
}

// TrySubmit queues job without blocking and returns the id it will be
// journaled under. It fails with mailbox.ErrFull when the backlog is full
// and mailbox.ErrClosed after shutdown.
func (h *Handle) TrySubmit(job task.Job) (uuid.UUID, error) {
	if h.closed.Load() {
		return uuid.Nil, mailbox.ErrClosed
	}
	id := uuid.New()
	err := h.rt.mailbox.TrySend(message{
		kind:      msgTask,
		id:        id,
		job:       job,
		submitted: time.Now(),
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// TryInclude queues a source file to be loaded into Main. Load failures
// are logged by the runtime.
func (h *Handle) TryInclude(path string) error {
	if h.closed.Load() {
		return mailbox.ErrClosed
	}
	return h.rt.mailbox.TrySend(message{kind: msgInclude, path: path})
}

// Include loads a source file into Main and waits for the outcome. A load
// failure is an *engine.IncludeError or *engine.IncludeNotFoundError.
func (h *Handle) Include(ctx context.Context, path string) error {
	if h.closed.Load() {
		return mailbox.ErrClosed
	}
	reply := make(chan error, 1)
	if err := h.rt.mailbox.TrySend(message{kind: msgInclude, path: path, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-h.rt.done:
		select {
		case err := <-reply:
			return err
		default:
			return mailbox.ErrClosed
		}
	}
}

// Shutdown asks the runtime to stop once the messages already queued have
// been processed. It does not wait; use JoinHandle.Join for that.
func (h *Handle) Shutdown() error {
	if h.closed.Load() {
		return mailbox.ErrClosed
	}
	return h.rt.mailbox.TrySend(message{kind: msgShutdown})
}

// Clone returns another producer handle.
func (h *Handle) Clone() (*Handle, error) {
	if h.closed.Load() {
		return nil, mailbox.ErrClosed
	}
	if err := h.rt.mailbox.AddProducer(); err != nil {
		return nil, err
	}
	return &Handle{rt: h.rt}, nil
}

// Close drops this producer. Close is idempotent.
func (h *Handle) Close() {
	if h.closed.Swap(true) {
		return
	}
	h.rt.mailbox.DropProducer()
}

// State returns the current loop state.
func (h *Handle) State() State { return h.rt.State() }

// Stats returns the loop counters.
func (h *Handle) Stats() Stats { return h.rt.Stats() }

// JoinHandle waits for the runtime thread.
type JoinHandle struct {
	rt *Runtime
}

// Join blocks until the engine has been torn down. It returns a
// *FatalError if the runtime thread died.
func (j *JoinHandle) Join() error {
	<-j.rt.done
	return j.rt.err
}

// Done is closed when the runtime thread exits.
func (j *JoinHandle) Done() <-chan struct{} { return j.rt.done }
