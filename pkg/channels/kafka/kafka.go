// Package kafka provides the Apache Kafka transport. Frames are published with
// watermill-kafka; topics are provisioned with kafka-go before subscribing.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/microred/pkg/channels"
	"github.com/dukex/microred/pkg/eventbus"
	kafkago "github.com/segmentio/kafka-go"
)

// Transport is the name flows use to select this backend.
const Transport = "kafka"

var ErrNoBrokers = errors.New("no Kafka brokers configured")

func CreateChannel(logger watermill.LoggerAdapter, brokers []string, consumerGroup string) (*kafka.Publisher, *kafka.Subscriber, error) {
	if len(brokers) == 0 || brokers[0] == "" {
		return nil, nil, ErrNoBrokers
	}

	saramaSubscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaSubscriberConfig.Consumer.Offsets.Initial = sarama.OffsetNewest

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaSubscriberConfig,
			ConsumerGroup:         "cg-" + consumerGroup,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	saramaPublisherConfig := sarama.NewConfig()
	saramaPublisherConfig.Producer.Return.Successes = true

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaPublisherConfig,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		_ = subscriber.Close()

		return nil, nil, err
	}

	return publisher, subscriber, nil
}

// Dialer connects to the brokers in Options.Host (comma separated host:port
// list, or a single host combined with Options.Port).
type Dialer struct {
	logger *slog.Logger
}

func NewDialer(logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dialer{logger: logger.With("module", "kafka-transport")}
}

func (d *Dialer) Dial(_ context.Context, opts channels.Options, handlers channels.Handlers) (channels.Conn, error) {
	brokers := Brokers(opts)

	group := opts.ClientID
	if group == "" {
		group = "microred"
	}

	pub, sub, err := CreateChannel(watermill.NewSlogLogger(d.logger), brokers, group)
	if err != nil {
		return nil, err
	}

	provisioned := &provisioningSubscriber{
		Subscriber: sub,
		brokers:    brokers,
		logger:     d.logger,
	}

	return eventbus.NewWatermillConn(pub, provisioned, opts, handlers), nil
}

// Brokers resolves the broker list from connection options.
func Brokers(opts channels.Options) []string {
	if strings.Contains(opts.Host, ",") {
		return strings.Split(opts.Host, ",")
	}

	if opts.Host == "" {
		return nil
	}

	return []string{opts.Address()}
}

type provisioningSubscriber struct {
	message.Subscriber

	brokers []string
	logger  *slog.Logger
}

func (s *provisioningSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if err := CreateTopics(s.brokers[0], topic); err != nil {
		s.logger.Warn("Failed to provision topic", "topic", topic, "error", err)
	}

	return s.Subscriber.Subscribe(ctx, topic)
}

// CreateTopics creates single-partition topics through the cluster controller.
func CreateTopics(broker string, topics ...string) error {
	conn, err := kafkago.Dial("tcp", broker)
	if err != nil {
		return fmt.Errorf("dial %s: %w", broker, err)
	}

	defer func() { _ = conn.Close() }()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}

	defer func() { _ = controllerConn.Close() }()

	configs := make([]kafkago.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}

	return controllerConn.CreateTopics(configs...)
}
