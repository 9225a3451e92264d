// Package mailbox is the bounded multi-producer, single-consumer queue
// between caller goroutines and the runtime loop.
package mailbox

import (
	"errors"
	"sync"
)

var (
	// ErrFull is returned when the backlog is at capacity.
	ErrFull = errors.New("mailbox: backlog full")
	// ErrClosed is returned once the mailbox has been closed.
	ErrClosed = errors.New("mailbox: closed")
)

// Mailbox is a bounded FIFO queue. Sends never block. The mailbox closes
// when its last producer is dropped or Close is called.
type Mailbox[T any] struct {
	mu        sync.RWMutex
	ch        chan T
	producers int
	closed    bool
}

// New creates a mailbox with room for backlog messages and one producer.
func New[T any](backlog int) *Mailbox[T] {
	if backlog < 1 {
		backlog = 1
	}
	return &Mailbox[T]{ch: make(chan T, backlog), producers: 1}
}

// TrySend enqueues msg, failing with ErrFull instead of waiting for room.
func (m *Mailbox[T]) TrySend(msg T) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	select {
	case m.ch <- msg:
		return nil
	default:
		return ErrFull
	}
}

// Receive returns the consumer side. It is closed after the last queued
// message once the mailbox closes.
func (m *Mailbox[T]) Receive() <-chan T { return m.ch }

// Len returns the number of queued messages.
func (m *Mailbox[T]) Len() int { return len(m.ch) }

// Cap returns the backlog capacity.
func (m *Mailbox[T]) Cap() int { return cap(m.ch) }

// AddProducer registers another producer. It fails once closed.
func (m *Mailbox[T]) AddProducer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.producers++
	return nil
}

// DropProducer unregisters a producer and closes the mailbox when none
// remain. It reports whether this call closed it.
func (m *Mailbox[T]) DropProducer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.producers == 0 {
		return false
	}
	m.producers--
	if m.producers == 0 {
		m.closeLocked()
		return true
	}
	return false
}

// Producers returns the number of live producers.
func (m *Mailbox[T]) Producers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.producers
}

// Close closes the mailbox regardless of live producers. Queued messages
// stay readable. Close is idempotent.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

// Closed reports whether the mailbox accepts messages.
func (m *Mailbox[T]) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Mailbox[T]) closeLocked() {
	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}
