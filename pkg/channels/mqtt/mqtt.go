// Package mqtt provides the MQTT 3.1.1 transport on top of the Eclipse Paho client.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/microred/pkg/channels"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// Transport is the name flows use to select this backend.
const Transport = "mqtt"

const (
	defaultPort    = 1883
	connectTimeout = 30 * time.Second
	quiesce        = 250
)

type Dialer struct {
	logger *slog.Logger
}

func NewDialer(logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dialer{logger: logger.With("module", "mqtt-transport")}
}

// BrokerURL returns the tcp:// URL for the options.
func BrokerURL(opts channels.Options) string {
	if strings.Contains(opts.Host, "://") {
		return opts.Host
	}

	port := opts.Port
	if port == 0 {
		port = defaultPort
	}

	return fmt.Sprintf("tcp://%s:%d", opts.Host, port)
}

// ClientOptions maps connection options onto Paho options.
func (d *Dialer) ClientOptions(opts channels.Options, handlers channels.Handlers) *paho.ClientOptions {
	clientOpts := paho.NewClientOptions().
		AddBroker(BrokerURL(opts)).
		SetClientID(opts.ClientID).
		SetCleanSession(opts.CleanSession).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetConnectTimeout(connectTimeout).
		SetProtocolVersion(4)

	if opts.Keepalive > 0 {
		clientOpts.SetKeepAlive(opts.Keepalive)
	}

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	clientOpts.SetOnConnectHandler(func(paho.Client) {
		handlers.Connect()
	})

	clientOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		d.logger.Warn("Connection to MQTT broker lost", "error", err)
		handlers.Error(err)
	})

	return clientOpts
}

func (d *Dialer) Dial(ctx context.Context, opts channels.Options, handlers channels.Handlers) (channels.Conn, error) {
	client := paho.NewClient(d.ClientOptions(opts, handlers))

	if err := wait(ctx, client.Connect()); err != nil {
		client.Disconnect(0)

		return nil, fmt.Errorf("failed to connect to %s: %w", BrokerURL(opts), err)
	}

	d.logger.InfoContext(ctx, "Connected to MQTT broker", "url", BrokerURL(opts), "client_id", opts.ClientID)

	c := &conn{
		client:   client,
		handlers: handlers,
		logger:   d.logger,
	}

	c.window = channels.NewWindow(opts.WindowCapacity(), c.publish, handlers, d.logger)

	return c, nil
}

func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}

type conn struct {
	client   paho.Client
	handlers channels.Handlers
	window   *channels.Window
	logger   *slog.Logger
}

func (c *conn) publish(f channels.Frame) error {
	token := c.client.Publish(f.Topic, f.QoS, f.Retain, f.Payload)
	token.Wait()

	return token.Error()
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

// Subscribe returns once the request is queued; a refused subscription is
// reported through Handlers.OnError.
func (c *conn) Subscribe(topic string, qos byte) error {
	token := c.client.Subscribe(topic, qos, func(_ paho.Client, m paho.Message) {
		c.handlers.Message(channels.Inbound{
			Topic:   m.Topic(),
			Payload: m.Payload(),
			QoS:     m.Qos(),
			Retain:  m.Retained(),
		})
	})

	go c.report("subscribe", topic, token)

	return nil
}

func (c *conn) Unsubscribe(topic string) error {
	go c.report("unsubscribe", topic, c.client.Unsubscribe(topic))

	return nil
}

func (c *conn) report(op, topic string, token paho.Token) {
	token.Wait()

	if err := token.Error(); err != nil {
		c.logger.Error("MQTT request failed", "op", op, "topic", topic, "error", err)
		c.handlers.Error(fmt.Errorf("%s %s: %w", op, topic, err))
	}
}

func (c *conn) Close() error {
	c.window.Close()

	go c.client.Disconnect(quiesce)

	return nil
}
