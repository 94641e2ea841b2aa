// Package gochannel provides the in-memory transport. Every connection dialed
// from the same Dialer shares one GoChannel, so brokers in one process reach each
// other without an external server.
package gochannel

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/dukex/microred/pkg/channels"
	"github.com/dukex/microred/pkg/eventbus"
)

// Transport is the name flows use to select this backend.
const Transport = "memory"

// CreateChannel returns one non-persistent GoChannel acting as both publisher
// and subscriber.
func CreateChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            1000,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)

	return pubSub, pubSub, nil
}

// shared keeps per-connection Close from tearing down the process-wide pub/sub.
type shared struct {
	*gochannel.GoChannel
}

func (shared) Close() error {
	return nil
}

type Dialer struct {
	pubSub *gochannel.GoChannel
}

func NewDialer(logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}

	pubSub, _, _ := CreateChannel(watermill.NewSlogLogger(logger))

	return &Dialer{pubSub: pubSub}
}

func (d *Dialer) Dial(_ context.Context, opts channels.Options, handlers channels.Handlers) (channels.Conn, error) {
	s := shared{d.pubSub}

	return eventbus.NewWatermillConn(s, s, opts, handlers), nil
}

// Close shuts the shared pub/sub down. Connections dialed earlier stop receiving.
func (d *Dialer) Close() error {
	return d.pubSub.Close()
}
