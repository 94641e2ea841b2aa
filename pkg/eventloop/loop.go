// Package eventloop provides the single cooperative execution context every node
// callback runs on. Timers, transport goroutines and the admin API never touch
// nodes directly: they post closures into the loop, which runs them one at a
// time, in posting order, to completion.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
)

var ErrClosed = errors.New("event loop closed")

// Loop serializes tasks onto one goroutine.
type Loop struct {
	clock  clockwork.Clock
	logger *slog.Logger

	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces the real clock, typically with a clockwork.FakeClock in tests.
func WithClock(clock clockwork.Clock) Option {
	return func(l *Loop) {
		l.clock = clock
	}
}

// WithLogger sets the logger used to report panicking tasks.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates a loop. It does nothing until Run or RunPending is called.
func New(opts ...Option) *Loop {
	l := &Loop{
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
		wake:   make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(l)
	}

	l.logger = l.logger.With("module", "eventloop")

	return l
}

// Clock returns the loop clock.
func (l *Loop) Clock() clockwork.Clock {
	return l.clock
}

// Post queues fn to run on the loop. It never blocks and is safe from any goroutine.
// It reports false when the loop has been closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()

		return false
	}

	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	return true
}

// Call posts fn and waits until it has run. It must not be called from the loop
// goroutine itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})

	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes tasks until ctx is canceled or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()

		if l.isClosed() {
			return ErrClosed
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunPending runs queued tasks on the calling goroutine until the queue is
// empty, including tasks posted while draining. It returns the number of tasks run.
func (l *Loop) RunPending() int {
	count := 0

	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return count
		}

		for _, fn := range batch {
			l.run(fn)
			count++
		}
	}
}

// Close stops accepting tasks. Queued tasks are dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.pending = nil
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.closed
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Task panicked", "panic", fmt.Sprint(r))
		}
	}()

	fn()
}
