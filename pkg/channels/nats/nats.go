// Package nats provides the NATS transport. Topics use "/" separators and the
// "+"/"#" wildcards; they are translated to NATS subjects on the way out and
// back on the way in.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukex/microred/pkg/channels"
	"github.com/nats-io/nats.go"
)

// Transport is the name flows use to select this backend.
const Transport = "nats"

const (
	defaultPort    = 4222
	connectTimeout = 5 * time.Second
	reconnectWait  = 2 * time.Second
)

var (
	toSubject = strings.NewReplacer("/", ".", "+", "*", "#", ">")
	toTopic   = strings.NewReplacer(".", "/")
)

// Subject converts a topic filter to a NATS subject.
func Subject(topic string) string {
	return toSubject.Replace(topic)
}

// Topic converts a NATS subject back to a topic.
func Topic(subject string) string {
	return toTopic.Replace(subject)
}

type Dialer struct {
	logger *slog.Logger
}

func NewDialer(logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dialer{logger: logger.With("module", "nats-transport")}
}

// URL returns the server URL for the options.
func URL(opts channels.Options) string {
	if strings.Contains(opts.Host, "://") {
		return opts.Host
	}

	host := opts.Host
	if host == "" {
		host = "localhost"
	}

	port := opts.Port
	if port == 0 {
		port = defaultPort
	}

	return fmt.Sprintf("nats://%s:%d", host, port)
}

func (d *Dialer) connectionOptions(opts channels.Options, handlers channels.Handlers) []nats.Option {
	natsOpts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.Timeout(connectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				d.logger.Warn("Disconnected from NATS", "error", err)
				handlers.Error(err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			d.logger.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
			handlers.Connect()
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			handlers.Error(err)
		}),
	}

	if opts.Keepalive > 0 {
		natsOpts = append(natsOpts, nats.PingInterval(opts.Keepalive))
	}

	if opts.Username != "" && opts.Password != "" {
		natsOpts = append(natsOpts, nats.UserInfo(opts.Username, opts.Password))
	}

	if opts.ClientID != "" {
		natsOpts = append(natsOpts, nats.Name(opts.ClientID))
	}

	return natsOpts
}

func (d *Dialer) Dial(ctx context.Context, opts channels.Options, handlers channels.Handlers) (channels.Conn, error) {
	url := URL(opts)

	type result struct {
		nc  *nats.Conn
		err error
	}

	done := make(chan result, 1)

	go func() {
		nc, err := nats.Connect(url, d.connectionOptions(opts, handlers)...)
		done <- result{nc: nc, err: err}
	}()

	var nc *nats.Conn

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.nc != nil {
				r.nc.Close()
			}
		}()

		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, r.err)
		}

		nc = r.nc
	}

	d.logger.InfoContext(ctx, "Connected to NATS", "url", url)

	c := &conn{
		nc:            nc,
		handlers:      handlers,
		subscriptions: make(map[string]*nats.Subscription),
	}

	c.window = channels.NewWindow(opts.WindowCapacity(), c.publish, handlers, d.logger)

	return c, nil
}

type conn struct {
	nc       *nats.Conn
	handlers channels.Handlers
	window   *channels.Window

	mu            sync.Mutex
	subscriptions map[string]*nats.Subscription
}

func (c *conn) publish(f channels.Frame) error {
	return c.nc.Publish(Subject(f.Topic), f.Payload)
}

func (c *conn) Write(f channels.Frame) (int, error) {
	return c.window.Write(f)
}

func (c *conn) Writable() int {
	return c.window.Writable()
}

func (c *conn) Capacity() int {
	return c.window.Capacity()
}

func (c *conn) Subscribe(topic string, _ byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subscriptions[topic]; ok {
		return nil
	}

	sub, err := c.nc.Subscribe(Subject(topic), func(m *nats.Msg) {
		c.handlers.Message(channels.Inbound{
			Topic:   Topic(m.Subject),
			Payload: m.Data,
		})
	})
	if err != nil {
		return err
	}

	c.subscriptions[topic] = sub

	return nil
}

func (c *conn) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subscriptions[topic]
	if !ok {
		return nil
	}

	delete(c.subscriptions, topic)

	return sub.Unsubscribe()
}

func (c *conn) Close() error {
	c.window.Close()
	c.nc.Close()

	return nil
}
