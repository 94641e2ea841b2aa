// Package mqtt provides the mqtt-broker configuration node and the mqtt in and
// mqtt out nodes that share its connection.
//
// The broker owns one connection, picked by transport, and multiplexes every
// subscribing node over it. Outbound publishes pass through a FIFO gated by the
// connection's writable window: once something is queued, every later publish
// queues behind it until the window drains it.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukex/microred/pkg/channels"
	"github.com/dukex/microred/pkg/config"
	"github.com/dukex/microred/pkg/eventloop"
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/models"
	"github.com/dukex/microred/pkg/otelhelper"
	"github.com/eapache/queue"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultQueueLimit = 256
	DefaultRetryDelay = 5 * time.Second
)

var (
	ErrBrokerStopped  = errors.New("broker not running")
	ErrBrokerNotFound = errors.New("mqtt broker not found")
)

type Credentials struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type BrokerConfig struct {
	Broker       string      `mapstructure:"broker"       validate:"required_unless=Transport memory"`
	Port         int         `mapstructure:"port"`
	ClientID     string      `mapstructure:"clientid"`
	Keepalive    int         `mapstructure:"keepalive"    default:"60"`
	CleanSession bool        `mapstructure:"cleansession"`
	Credentials  Credentials `mapstructure:"credentials"`

	BirthTopic      string `mapstructure:"birthTopic"`
	CloseTopic      string `mapstructure:"closeTopic"`
	WillTopic       string `mapstructure:"willTopic"`
	ProtocolVersion string `mapstructure:"protocolVersion" default:"4"`
	UseTLS          bool   `mapstructure:"usetls"`
	AutoConnect     bool   `mapstructure:"autoConnect"     default:"true"`
	SessionExpiry   string `mapstructure:"sessionExpiry"`

	Transport  string `mapstructure:"transport"  default:"mqtt"`
	Capacity   int    `mapstructure:"capacity"   validate:"min=0"`
	QueueLimit int    `mapstructure:"queueLimit" default:"256" validate:"min=0"`
}

func (c BrokerConfig) unimplemented() error {
	switch {
	case c.BirthTopic != "":
		return config.Unimplemented("birthTopic")
	case c.CloseTopic != "":
		return config.Unimplemented("closeTopic")
	case c.WillTopic != "":
		return config.Unimplemented("willTopic")
	case c.ProtocolVersion != "4":
		return config.Unimplemented("protocolVersion " + c.ProtocolVersion)
	case c.UseTLS:
		return config.Unimplemented("usetls")
	case !c.AutoConnect:
		return config.Unimplemented("autoConnect false")
	case c.SessionExpiry != "":
		return config.Unimplemented("sessionExpiry")
	}

	return nil
}

type subscription struct {
	node   flow.Node
	topic  string
	format string
	qos    byte
}

// BrokerNode is the buffered transport. Every method runs on the event loop;
// connection callbacks are posted back onto it and discarded once the
// connection they belong to has been replaced or stopped.
type BrokerNode struct {
	flow.Base

	loop    *eventloop.Loop
	dialers channels.Dialers
	tracer  trace.Tracer

	// RetryDelay is the wait before dialing again after a failed dial.
	RetryDelay time.Duration

	dialer     channels.Dialer
	opts       channels.Options
	queueLimit int

	conn          channels.Conn
	generation    uint64
	cancelDial    context.CancelFunc
	retry         *eventloop.Timer
	subscriptions []subscription
	writable      int
	queue         *queue.Queue
}

func NewBrokerNode(opts flow.Options, loop *eventloop.Loop, dialers channels.Dialers, tracer trace.Tracer) *BrokerNode {
	return &BrokerNode{
		Base:       flow.NewBase(opts),
		loop:       loop,
		dialers:    dialers,
		tracer:     tracer,
		RetryDelay: DefaultRetryDelay,
	}
}

func (n *BrokerNode) OnSetup(item models.Item) error {
	var cfg BrokerConfig
	if err := config.Decode(item.Config, &cfg); err != nil {
		return err
	}

	if err := cfg.unimplemented(); err != nil {
		return err
	}

	dialer, err := n.dialers.Get(cfg.Transport)
	if err != nil {
		return err
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "microred-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(n.ID())).String()
	}

	keepalive := cfg.Keepalive
	if keepalive <= 0 {
		keepalive = 60
	}

	n.dialer = dialer
	n.queueLimit = cfg.QueueLimit
	n.opts = channels.Options{
		Transport:    cfg.Transport,
		Host:         cfg.Broker,
		Port:         cfg.Port,
		ClientID:     clientID,
		Keepalive:    time.Duration(keepalive) * time.Second,
		CleanSession: cfg.CleanSession,
		Username:     cfg.Credentials.User,
		Password:     cfg.Credentials.Password,
		Capacity:     cfg.Capacity,
		Logger:       n.Logger(),
	}

	return nil
}

// Options returns the connection options decoded at setup.
func (n *BrokerNode) Options() channels.Options {
	return n.opts
}

func (n *BrokerNode) OnStart(context.Context) error {
	n.queue = queue.New()
	n.writable = 0
	n.connect()

	return nil
}

// Connected reports whether a connection is attached.
func (n *BrokerNode) Connected() bool {
	return n.conn != nil
}

// QueueLength returns the number of publishes waiting for the window.
func (n *BrokerNode) QueueLength() int {
	if n.queue == nil {
		return 0
	}

	return n.queue.Length()
}

func (n *BrokerNode) connect() {
	n.generation++
	generation := n.generation

	ctx, cancel := context.WithCancel(context.Background())
	n.cancelDial = cancel

	// post runs fn on the loop unless this connection has been superseded
	post := func(fn func()) {
		n.loop.Post(func() {
			if generation == n.generation {
				fn()
			}
		})
	}

	handlers := channels.Handlers{
		OnConnect: func() {
			post(n.onConnect)
		},
		OnMessage: func(in channels.Inbound) {
			post(func() { n.onInbound(in) })
		},
		OnWritable: func(available int) {
			post(func() { n.onWritable(available) })
		},
		OnError: func(err error) {
			post(func() { n.Logger().Warn("Connection error", "error", err) })
		},
	}

	n.Logger().Debug("Dialing", "transport", n.opts.Transport, "address", addressOf(n.opts))

	go func() {
		conn, err := n.dialer.Dial(ctx, n.opts, handlers)

		posted := n.loop.Post(func() {
			n.attach(generation, conn, err)
		})
		if !posted && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (n *BrokerNode) attach(generation uint64, conn channels.Conn, err error) {
	if generation != n.generation {
		if conn != nil {
			_ = conn.Close()
		}

		return
	}

	if err != nil {
		n.Logger().Warn("Failed to connect, retrying",
			"transport", n.opts.Transport,
			"address", addressOf(n.opts),
			"retry_in", n.RetryDelay,
			"error", err)

		n.retry = n.loop.SetTimeout(n.RetryDelay, n.connect)

		return
	}

	n.conn = conn
	n.writable = conn.Writable()

	n.Logger().Info("Connected", "transport", n.opts.Transport, "address", addressOf(n.opts))

	n.onConnect()
}

// onConnect (re)issues every subscription and drains whatever queued while
// the connection was down.
func (n *BrokerNode) onConnect() {
	if n.conn == nil {
		return
	}

	for _, sub := range n.subscriptions {
		if err := n.conn.Subscribe(sub.topic, sub.qos); err != nil {
			n.Logger().Warn("Failed to subscribe", "topic", sub.topic, "error", err)
		}
	}

	n.drain()
}

func (n *BrokerNode) onWritable(available int) {
	n.writable = available
	n.drain()
}

// Subscribe registers node for topic. Two nodes may subscribe to the same topic
// with different formats; each receives its own decoding.
func (n *BrokerNode) Subscribe(node flow.Node, topic, format string, qos byte) error {
	if !KnownFormat(format) {
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}

	n.subscriptions = append(n.subscriptions, subscription{node: node, topic: topic, format: format, qos: qos})

	if n.conn != nil {
		return n.conn.Subscribe(topic, qos)
	}

	return nil
}

// Unsubscribe removes the subscriptions of node on topic, or every
// subscription when node is nil. Topics nobody listens to anymore are
// unsubscribed at the connection.
func (n *BrokerNode) Unsubscribe(node flow.Node, topic string) error {
	var removed []string

	n.subscriptions = slices.DeleteFunc(n.subscriptions, func(sub subscription) bool {
		if node == nil || (sub.node == node && sub.topic == topic) {
			removed = append(removed, sub.topic)

			return true
		}

		return false
	})

	if n.conn == nil {
		return nil
	}

	slices.Sort(removed)

	var errs []error

	for _, topic := range slices.Compact(removed) {
		if n.subscribed(topic) {
			continue
		}

		if err := n.conn.Unsubscribe(topic); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %s: %w", topic, err))
		}
	}

	return errors.Join(errs...)
}

func (n *BrokerNode) subscribed(topic string) bool {
	return slices.ContainsFunc(n.subscriptions, func(sub subscription) bool {
		return sub.topic == topic
	})
}

// onInbound delivers one received message to every subscription on exactly
// its topic. Decode and delivery failures are isolated per subscriber.
func (n *BrokerNode) onInbound(in channels.Inbound) {
	if in.More {
		n.Logger().Warn("Dropping inbound message", "topic", in.Topic, "error", channels.ErrFragmented)

		return
	}

	_, span := otelhelper.StartSpan(context.Background(), n.tracer, "mqtt.inbound",
		append(otelhelper.NodeAttributes(n.Flow().ID(), n.ID(), n.Type()),
			attribute.String(otelhelper.TopicKey, in.Topic))...)
	defer span.End()

	for _, sub := range slices.Clone(n.subscriptions) {
		if sub.topic != in.Topic {
			continue
		}

		payload, err := Decode(sub.format, in.Payload)
		if err != nil {
			n.Logger().Warn("Failed to decode inbound message",
				"topic", in.Topic,
				"format", sub.format,
				"subscriber", sub.node.ID(),
				"error", err)
			n.Metrics().DecodeFailed(n.ID(), sub.format)

			continue
		}

		fields := map[string]any{
			models.FieldTopic:   in.Topic,
			models.FieldQoS:     int(in.QoS),
			models.FieldPayload: payload,
		}
		if in.Retain {
			fields[models.FieldRetain] = true
		}

		if err := sub.node.Send(models.NewMessage(fields)); err != nil {
			n.Logger().Error("Inbound delivery failed", "topic", in.Topic, "subscriber", sub.node.ID(), "error", err)
			otelhelper.SetError(span, err, attribute.String(otelhelper.NodeIDKey, sub.node.ID()))
		}
	}
}

// OnMessage publishes msg as is: payload, topic, qos and retain fields.
func (n *BrokerNode) OnMessage(msg *models.Message) (*models.Message, error) {
	frame, ok, err := FrameFromMessage(msg, FrameDefaults{})
	if err != nil || !ok {
		return nil, err
	}

	return nil, n.Publish(frame)
}

// Publish writes f when nothing is queued and it fits the writable window,
// otherwise queues it behind the pending frames.
func (n *BrokerNode) Publish(f channels.Frame) error {
	if n.queue == nil {
		return fmt.Errorf("%w: %s", ErrBrokerStopped, n.ID())
	}

	if capacity := n.capacity(); f.Size() > capacity {
		return fmt.Errorf("%w: frame of %d bytes on %s exceeds window of %d",
			channels.ErrFragmentationUnsupported, f.Size(), f.Topic, capacity)
	}

	if n.queue.Length() > 0 || n.conn == nil || f.Size() > n.writable {
		return n.enqueue(f)
	}

	available, err := n.conn.Write(f)
	n.writable = available

	switch {
	case errors.Is(err, channels.ErrWindowExhausted):
		return n.enqueue(f)
	case err != nil:
		return err
	}

	n.Metrics().FramePublished(n.ID())

	return nil
}

func (n *BrokerNode) capacity() int {
	if n.conn != nil {
		return n.conn.Capacity()
	}

	return n.opts.WindowCapacity()
}

func (n *BrokerNode) enqueue(f channels.Frame) error {
	if n.queueLimit > 0 && n.queue.Length() >= n.queueLimit {
		n.Metrics().QueueOverflow(n.ID())

		return fmt.Errorf("%w: %d frames pending on %s", channels.ErrQueueFull, n.queue.Length(), n.ID())
	}

	n.queue.Add(f)
	n.Metrics().SetQueueDepth(n.ID(), n.queue.Length())

	return nil
}

// drain writes queued frames in arrival order and stops at the first one that
// does not fit, leaving it at the head.
func (n *BrokerNode) drain() {
	if n.queue == nil {
		return
	}

	for n.conn != nil && n.queue.Length() > 0 {
		f, _ := n.queue.Peek().(channels.Frame)
		if f.Size() > n.writable {
			break
		}

		available, err := n.conn.Write(f)
		n.writable = available

		if errors.Is(err, channels.ErrWindowExhausted) {
			break
		}

		n.queue.Remove()

		if err != nil {
			n.Logger().Error("Dropping queued frame", "topic", f.Topic, "error", err)

			continue
		}

		n.Metrics().FramePublished(n.ID())
	}

	n.Metrics().SetQueueDepth(n.ID(), n.queue.Length())
}

// OnStop closes the connection and forgets subscriptions and queued frames.
func (n *BrokerNode) OnStop(context.Context) error {
	n.generation++

	if n.cancelDial != nil {
		n.cancelDial()
		n.cancelDial = nil
	}

	n.retry.Clear()
	n.retry = nil

	var err error
	if n.conn != nil {
		err = n.conn.Close()
		n.conn = nil
	}

	n.subscriptions = nil
	n.queue = nil
	n.writable = 0
	n.Metrics().SetQueueDepth(n.ID(), 0)

	return err
}

// addressOf renders the broker address for logs; hosts may carry a scheme.
func addressOf(opts channels.Options) string {
	if strings.Contains(opts.Host, "://") {
		return opts.Host
	}

	return opts.Address()
}
