// Package channels defines the external publish/subscribe connection owned by a
// broker node and the byte budget ("writable window") that gates outbound frames.
// Backends live in subpackages; each one turns a concrete client into a Conn.
package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// FrameOverhead approximates the framing bytes added to every publish.
const FrameOverhead = 10

// DefaultCapacity is the outbound byte budget of a connection when none is configured.
const DefaultCapacity = 4096

var (
	ErrUnknownTransport = errors.New("unknown transport")
	ErrWindowExhausted  = errors.New("writable window exhausted")
	ErrConnClosed       = errors.New("connection closed")

	// ErrQueueFull is returned when an outbound publish is rejected because the
	// broker queue reached its limit.
	ErrQueueFull = errors.New("outbound queue full")

	// ErrFragmentationUnsupported is returned for a frame larger than the whole window.
	ErrFragmentationUnsupported = errors.New("fragmented send unimplemented")

	// ErrFragmented reports inbound data split across several reads.
	ErrFragmented = errors.New("fragmented receive unimplemented")
)

// Frame is one outbound publish.
type Frame struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Size is the number of window bytes the frame consumes.
func (f Frame) Size() int {
	return len(f.Payload) + len(f.Topic) + FrameOverhead
}

// Inbound is one message received from the connection.
type Inbound struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
	// More is set when the payload is a fragment of a larger message.
	More bool
}

// Handlers receive connection events. Backends call them from their own
// goroutines; the broker node re-posts them onto the event loop.
type Handlers struct {
	OnConnect  func()
	OnMessage  func(Inbound)
	OnWritable func(available int)
	OnError    func(error)
}

// Connect invokes OnConnect if set.
func (h Handlers) Connect() {
	if h.OnConnect != nil {
		h.OnConnect()
	}
}

// Message invokes OnMessage if set.
func (h Handlers) Message(in Inbound) {
	if h.OnMessage != nil {
		h.OnMessage(in)
	}
}

// Writable invokes OnWritable if set.
func (h Handlers) Writable(available int) {
	if h.OnWritable != nil {
		h.OnWritable(available)
	}
}

// Error invokes OnError if set.
func (h Handlers) Error(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// Conn is a connected publish/subscribe client.
type Conn interface {
	Subscribe(topic string, qos byte) error
	Unsubscribe(topic string) error
	// Write publishes f and returns the bytes still writable afterwards.
	Write(f Frame) (int, error)
	// Writable returns the bytes that can be written without blocking.
	Writable() int
	// Capacity returns the total outbound byte budget.
	Capacity() int
	Close() error
}

// Options configure a connection.
type Options struct {
	Transport    string
	Host         string
	Port         int
	ClientID     string
	Keepalive    time.Duration
	CleanSession bool
	Username     string
	Password     string
	Capacity     int
	Logger       *slog.Logger
}

// Address returns host:port.
func (o Options) Address() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// WindowCapacity returns the configured byte budget or DefaultCapacity.
func (o Options) WindowCapacity() int {
	if o.Capacity <= 0 {
		return DefaultCapacity
	}

	return o.Capacity
}

// Dialer opens a connection. Dial may block; callers run it off the event loop.
type Dialer interface {
	Dial(ctx context.Context, opts Options, handlers Handlers) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, opts Options, handlers Handlers) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, opts Options, handlers Handlers) (Conn, error) {
	return f(ctx, opts, handlers)
}

// Dialers maps transport names to dialers.
type Dialers map[string]Dialer

// Get resolves a transport.
func (d Dialers) Get(transport string) (Dialer, error) {
	dialer, ok := d[transport]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, transport)
	}

	return dialer, nil
}
