// Package channelstest provides an in-process Conn whose window and inbound
// traffic are driven by the test.
package channelstest

import (
	"context"
	"sync"

	"github.com/dukex/microred/pkg/channels"
)

// Conn records writes and subscriptions. Writes consume the window until the
// test calls Drain.
type Conn struct {
	mu            sync.Mutex
	capacity      int
	writable      int
	frames        []channels.Frame
	subscriptions map[string]byte
	closed        bool
	handlers      channels.Handlers
}

func NewConn(capacity int) *Conn {
	return &Conn{
		capacity:      capacity,
		writable:      capacity,
		subscriptions: make(map[string]byte),
	}
}

func (c *Conn) Subscribe(topic string, qos byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subscriptions[topic] = qos

	return nil
}

func (c *Conn) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.subscriptions, topic)

	return nil
}

func (c *Conn) Write(f channels.Frame) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, channels.ErrConnClosed
	}

	if f.Size() > c.writable {
		return c.writable, channels.ErrWindowExhausted
	}

	c.writable -= f.Size()
	c.frames = append(c.frames, f)

	return c.writable, nil
}

func (c *Conn) Writable() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.writable
}

func (c *Conn) Capacity() int {
	return c.capacity
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	return nil
}

// Frames returns every frame written so far.
func (c *Conn) Frames() []channels.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]channels.Frame(nil), c.frames...)
}

// Topics returns the subscribed topics with their QoS.
func (c *Conn) Topics() map[string]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]byte, len(c.subscriptions))
	for k, v := range c.subscriptions {
		out[k] = v
	}

	return out
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// Drain frees the whole window and reports it through OnWritable.
func (c *Conn) Drain() {
	c.mu.Lock()
	c.writable = c.capacity
	handlers := c.handlers
	c.mu.Unlock()

	handlers.Writable(c.capacity)
}

// Deliver feeds an inbound message as if it came from the network.
func (c *Conn) Deliver(in channels.Inbound) {
	c.mu.Lock()
	handlers := c.handlers
	c.mu.Unlock()

	handlers.Message(in)
}

// Reconnect fires OnConnect.
func (c *Conn) Reconnect() {
	c.mu.Lock()
	handlers := c.handlers
	c.mu.Unlock()

	handlers.Connect()
}

// Dialer hands out Conn and remembers the handlers it was dialed with.
type Dialer struct {
	Conn *Conn
	Err  error

	mu    sync.Mutex
	dials []channels.Options
}

func NewDialer(capacity int) *Dialer {
	return &Dialer{Conn: NewConn(capacity)}
}

func (d *Dialer) Dial(_ context.Context, opts channels.Options, handlers channels.Handlers) (channels.Conn, error) {
	d.mu.Lock()
	d.dials = append(d.dials, opts)
	d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}

	d.Conn.mu.Lock()
	d.Conn.handlers = handlers
	d.Conn.mu.Unlock()

	return d.Conn, nil
}

// Dials returns the options of every Dial call.
func (d *Dialer) Dials() []channels.Options {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]channels.Options(nil), d.dials...)
}
