// Package pipeline holds the hand-off primitives between the capture and render loops.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Get once the mailbox is closed and drained.
var ErrClosed = errors.New("mailbox closed")

// Latest is a single-slot mailbox. A Put replaces any value the consumer has
// not taken yet, so a slow consumer always sees the most recent value.
// It serves any number of producers and a single consumer.
type Latest[T any] struct {
	mu      sync.Mutex
	val     T
	full    bool
	closed  bool
	ready   chan struct{}
	dropped atomic.Int64
	onDrop  func(T)
}

// NewLatest creates an empty mailbox. onDrop, if non-nil, receives every
// value that was replaced before being consumed (e.g. to recycle buffers).
func NewLatest[T any](onDrop func(T)) *Latest[T] {
	return &Latest[T]{
		ready:  make(chan struct{}, 1),
		onDrop: onDrop,
	}
}

// Put stores v, superseding any unconsumed value. It never blocks.
// It reports false when the mailbox is closed.
func (l *Latest[T]) Put(v T) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	var old T
	replaced := l.full
	if replaced {
		old = l.val
	}
	l.val = v
	l.full = true
	l.mu.Unlock()

	if replaced {
		l.dropped.Add(1)
		if l.onDrop != nil {
			l.onDrop(old)
		}
	}

	select {
	case l.ready <- struct{}{}:
	default:
	}
	return true
}

// Get blocks until a value is available, the mailbox is closed, or ctx is done.
func (l *Latest[T]) Get(ctx context.Context) (T, error) {
	var zero T
	for {
		l.mu.Lock()
		if l.full {
			v := l.val
			l.val = zero
			l.full = false
			l.mu.Unlock()
			return v, nil
		}
		if l.closed {
			l.mu.Unlock()
			return zero, ErrClosed
		}
		l.mu.Unlock()

		select {
		case <-l.ready:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close wakes any waiting consumer. A pending value can still be taken.
func (l *Latest[T]) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// Dropped returns how many values were superseded before being consumed.
func (l *Latest[T]) Dropped() int64 {
	return l.dropped.Load()
}
