package channels

import (
	"fmt"
	"log/slog"
	"sync"
)

// Window accounts for the outbound byte budget of a connection. Write reserves
// the frame size and hands the frame to a sender goroutine, which publishes
// frames in order and releases their bytes, reporting the new budget through
// Handlers.OnWritable.
type Window struct {
	capacity int
	send     func(Frame) error
	handlers Handlers
	logger   *slog.Logger

	mu       sync.Mutex
	inflight int
	closed   bool
	frames   chan Frame
}

// NewWindow starts the sender goroutine. send is called sequentially, never
// concurrently, in write order.
func NewWindow(capacity int, send func(Frame) error, handlers Handlers, logger *slog.Logger) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	if logger == nil {
		logger = slog.Default()
	}

	w := &Window{
		capacity: capacity,
		send:     send,
		handlers: handlers,
		logger:   logger,
		// every frame costs at least FrameOverhead bytes, so reserved frames
		// always fit in the channel buffer
		frames: make(chan Frame, capacity/FrameOverhead+1),
	}

	go w.run()

	return w
}

// Capacity returns the total byte budget.
func (w *Window) Capacity() int {
	return w.capacity
}

// Writable returns the bytes that can currently be reserved.
func (w *Window) Writable() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.capacity - w.inflight
}

// Write reserves room for f and queues it for sending. It never blocks.
func (w *Window) Write(f Frame) (int, error) {
	size := f.Size()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrConnClosed
	}

	available := w.capacity - w.inflight
	if size > available {
		return available, fmt.Errorf("%w: frame of %d bytes, %d writable", ErrWindowExhausted, size, available)
	}

	w.inflight += size
	w.frames <- f

	return w.capacity - w.inflight, nil
}

// Close stops accepting frames. Frames already queued are still sent.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	w.closed = true
	close(w.frames)
}

func (w *Window) run() {
	for f := range w.frames {
		if err := w.send(f); err != nil {
			w.logger.Warn("Failed to publish frame", "topic", f.Topic, "error", err)
			w.handlers.Error(fmt.Errorf("publish %s: %w", f.Topic, err))
		}

		w.mu.Lock()
		w.inflight -= f.Size()
		available := w.capacity - w.inflight
		w.mu.Unlock()

		w.handlers.Writable(available)
	}
}
