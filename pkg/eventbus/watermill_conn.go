// Package eventbus adapts watermill publishers and subscribers to channels.Conn,
// so any watermill pub/sub can back a broker node.
package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/microred/pkg/channels"
)

const (
	QoSMetadataKey    = "microred-qos"
	RetainMetadataKey = "microred-retain"
)

// WatermillConn publishes frames through a watermill Publisher and turns every
// subscribed topic into a goroutine draining the Subscriber's channel.
type WatermillConn struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	handlers   channels.Handlers
	window     *channels.Window
	logger     *slog.Logger

	mu            sync.Mutex
	subscriptions map[string]*subscription
}

// subscription is one topic's consumer. Watermill closes the message channel
// asynchronously after cancel, so closed gates delivery once unsubscribed.
type subscription struct {
	cancel context.CancelFunc
	closed atomic.Bool
}

func (s *subscription) stop() {
	s.closed.Store(true)
	s.cancel()
}

func NewWatermillConn(
	pub message.Publisher,
	sub message.Subscriber,
	opts channels.Options,
	handlers channels.Handlers,
) *WatermillConn {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &WatermillConn{
		publisher:     pub,
		subscriber:    sub,
		handlers:      handlers,
		logger:        logger.With("module", "watermill-conn"),
		subscriptions: make(map[string]*subscription),
	}

	c.window = channels.NewWindow(opts.WindowCapacity(), c.publish, handlers, c.logger)

	return c
}

func (c *WatermillConn) GenerateID() string {
	return watermill.NewULID()
}

func (c *WatermillConn) publish(f channels.Frame) error {
	msg := message.NewMessage("msg-"+c.GenerateID(), f.Payload)
	msg.Metadata.Set("key", f.Topic)
	msg.Metadata.Set(QoSMetadataKey, strconv.Itoa(int(f.QoS)))
	msg.Metadata.Set(RetainMetadataKey, strconv.FormatBool(f.Retain))

	return c.publisher.Publish(f.Topic, msg)
}

func (c *WatermillConn) Write(f channels.Frame) (int, error) {
	return c.window.Write(f)
}

func (c *WatermillConn) Writable() int {
	return c.window.Writable()
}

func (c *WatermillConn) Capacity() int {
	return c.window.Capacity()
}

// Subscribe is idempotent per topic.
func (c *WatermillConn) Subscribe(topic string, _ byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subscriptions[topic]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	messages, err := c.subscriber.Subscribe(ctx, topic)
	if err != nil {
		cancel()

		return err
	}

	sub := &subscription{cancel: cancel}
	c.subscriptions[topic] = sub

	go c.consume(topic, sub, messages)

	c.logger.Debug("Subscribed", "topic", topic)

	return nil
}

func (c *WatermillConn) consume(topic string, sub *subscription, messages <-chan *message.Message) {
	for msg := range messages {
		if sub.closed.Load() {
			msg.Ack()

			continue
		}

		qos, _ := strconv.Atoi(msg.Metadata.Get(QoSMetadataKey))
		retain, _ := strconv.ParseBool(msg.Metadata.Get(RetainMetadataKey))

		c.handlers.Message(channels.Inbound{
			Topic:   topic,
			Payload: msg.Payload,
			QoS:     byte(qos),
			Retain:  retain,
		})

		msg.Ack()
	}

	c.logger.Debug("Subscription closed", "topic", topic)
}

func (c *WatermillConn) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.subscriptions[topic]; ok {
		sub.stop()
		delete(c.subscriptions, topic)
	}

	return nil
}

// Close cancels every subscription and closes the publisher and subscriber,
// returning the first error encountered.
func (c *WatermillConn) Close() error {
	c.window.Close()

	c.mu.Lock()
	for topic, sub := range c.subscriptions {
		sub.stop()
		delete(c.subscriptions, topic)
	}
	c.mu.Unlock()

	var publisherErr, subscriberErr error

	if c.publisher != nil {
		publisherErr = c.publisher.Close()
		if publisherErr != nil {
			c.logger.Error("Failed to close publisher", "error", publisherErr)
		}
	}

	if c.subscriber != nil && any(c.subscriber) != any(c.publisher) {
		subscriberErr = c.subscriber.Close()
		if subscriberErr != nil {
			c.logger.Error("Failed to close subscriber", "error", subscriberErr)
		}
	}

	return errors.Join(publisherErr, subscriberErr)
}
