// Package redis provides the Redis pub/sub transport. MQTT-style wildcard
// topics ("+" and "#") are mapped onto pattern subscriptions.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukex/microred/pkg/channels"
	goredis "github.com/redis/go-redis/v9"
)

// Transport is the name flows use to select this backend.
const Transport = "redis"

const pingTimeout = 5 * time.Second

type Dialer struct {
	logger *slog.Logger
}

func NewDialer(logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dialer{logger: logger.With("module", "redis-transport")}
}

// ClientOptions builds go-redis options. A Host written as a redis:// URL wins
// over the discrete fields.
func ClientOptions(opts channels.Options) (*goredis.Options, error) {
	if strings.HasPrefix(opts.Host, "redis://") || strings.HasPrefix(opts.Host, "rediss://") {
		return goredis.ParseURL(opts.Host)
	}

	addr := opts.Address()
	if opts.Host == "" {
		addr = "localhost:6379"
	}

	return &goredis.Options{
		Addr:       addr,
		Username:   opts.Username,
		Password:   opts.Password,
		ClientName: opts.ClientID,
	}, nil
}

func (d *Dialer) Dial(ctx context.Context, opts channels.Options, handlers channels.Handlers) (channels.Conn, error) {
	redisOpts, err := ClientOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("invalid redis address: %w", err)
	}

	client := goredis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	d.logger.InfoContext(ctx, "Connected to Redis", "addr", redisOpts.Addr, "db", redisOpts.DB)

	c := &conn{
		client:   client,
		pubsub:   client.Subscribe(context.Background()),
		handlers: handlers,
		logger:   d.logger,
		commands: make(chan func(context.Context) error, 256),
		done:     make(chan struct{}),
	}

	c.window = channels.NewWindow(opts.WindowCapacity(), c.publish, handlers, d.logger)

	c.wg.Add(2)

	go c.consume()
	go c.control()

	return c, nil
}

type conn struct {
	client   *goredis.Client
	pubsub   *goredis.PubSub
	handlers channels.Handlers
	window   *channels.Window
	logger   *slog.Logger

	commands  chan func(context.Context) error
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Pattern reports whether topic holds wildcards and returns its glob form.
func Pattern(topic string) (string, bool) {
	if !strings.ContainsAny(topic, "+#") {
		return topic, false
	}

	glob := strings.NewReplacer("+", "*", "#", "*").Replace(topic)

	return glob, true
}

func (c *conn) publish(f channels.Frame) error {
	return c.client.Publish(context.Background(), f.Topic, f.Payload).Err()
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

// Subscribe queues the command for the control goroutine so the caller never
// waits on the network.
func (c *conn) Subscribe(topic string, _ byte) error {
	return c.enqueue(func(ctx context.Context) error {
		if glob, ok := Pattern(topic); ok {
			return c.pubsub.PSubscribe(ctx, glob)
		}

		return c.pubsub.Subscribe(ctx, topic)
	})
}

func (c *conn) Unsubscribe(topic string) error {
	return c.enqueue(func(ctx context.Context) error {
		if glob, ok := Pattern(topic); ok {
			return c.pubsub.PUnsubscribe(ctx, glob)
		}

		return c.pubsub.Unsubscribe(ctx, topic)
	})
}

func (c *conn) enqueue(cmd func(context.Context) error) error {
	select {
	case <-c.done:
		return channels.ErrConnClosed
	default:
	}

	select {
	case c.commands <- cmd:
		return nil
	default:
		return errors.New("redis command queue full")
	}
}

func (c *conn) control() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case cmd := <-c.commands:
			if err := cmd(context.Background()); err != nil {
				c.logger.Error("Redis subscription command failed", "error", err)
				c.handlers.Error(err)
			}
		}
	}
}

func (c *conn) consume() {
	defer c.wg.Done()

	for msg := range c.pubsub.Channel() {
		c.handlers.Message(channels.Inbound{
			Topic:   msg.Channel,
			Payload: []byte(msg.Payload),
		})
	}
}

func (c *conn) Close() error {
	var err error

	c.closeOnce.Do(func() {
		close(c.done)
		c.window.Close()

		err = errors.Join(c.pubsub.Close(), c.client.Close())

		c.wg.Wait()
	})

	return err
}
