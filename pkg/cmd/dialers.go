package cmd

import (
	"log/slog"

	"github.com/dukex/microred/pkg/channels"
	"github.com/dukex/microred/pkg/channels/gochannel"
	"github.com/dukex/microred/pkg/channels/kafka"
	"github.com/dukex/microred/pkg/channels/mqtt"
	"github.com/dukex/microred/pkg/channels/nats"
	"github.com/dukex/microred/pkg/channels/redis"
)

// NewDialers returns every transport a broker node can select. The returned
// function releases the in-memory pub/sub shared by "memory" brokers.
func NewDialers(logger *slog.Logger) (channels.Dialers, func() error) {
	memory := gochannel.NewDialer(logger)

	dialers := channels.Dialers{
		gochannel.Transport: memory,
		mqtt.Transport:      mqtt.NewDialer(logger),
		kafka.Transport:     kafka.NewDialer(logger),
		redis.Transport:     redis.NewDialer(logger),
		nats.Transport:      nats.NewDialer(logger),
	}

	return dialers, memory.Close
}
