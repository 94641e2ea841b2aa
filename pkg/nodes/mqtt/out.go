package mqtt

import (
	"strconv"

	"github.com/dukex/microred/pkg/config"
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/models"
)

// OutConfig leaves topic, qos and retain empty to take them from each message.
type OutConfig struct {
	Broker string `mapstructure:"broker" validate:"required"`
	Topic  string `mapstructure:"topic"`
	QoS    string `mapstructure:"qos"    validate:"omitempty,oneof=0 1 2"`
	Retain string `mapstructure:"retain" validate:"omitempty,oneof=true false 1 0"`
}

// OutNode publishes messages through a broker.
type OutNode struct {
	flow.Base

	flows    *flow.Set
	broker   *BrokerNode
	defaults FrameDefaults
}

func NewOutNode(opts flow.Options, flows *flow.Set) *OutNode {
	return &OutNode{Base: flow.NewBase(opts), flows: flows}
}

func (n *OutNode) OnSetup(item models.Item) error {
	var cfg OutConfig
	if err := config.Decode(item.Config, &cfg); err != nil {
		return err
	}

	broker, err := resolveBroker(n.flows, cfg.Broker)
	if err != nil {
		return err
	}

	n.broker = broker
	n.defaults = FrameDefaults{Topic: cfg.Topic}

	if cfg.QoS != "" {
		qos, _ := strconv.Atoi(cfg.QoS)
		value := byte(qos)
		n.defaults.QoS = &value
	}

	if cfg.Retain != "" {
		retain, _ := strconv.ParseBool(cfg.Retain)
		n.defaults.Retain = &retain
	}

	return nil
}

func (n *OutNode) OnMessage(msg *models.Message) (*models.Message, error) {
	frame, ok, err := FrameFromMessage(msg, n.defaults)
	if err != nil || !ok {
		return nil, err
	}

	return nil, n.broker.Publish(frame)
}
