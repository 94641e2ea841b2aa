package mqtt

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/microred/pkg/config"
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/models"
)

type InConfig struct {
	Broker   string `mapstructure:"broker"   validate:"required"`
	Topic    string `mapstructure:"topic"    validate:"required"`
	Datatype string `mapstructure:"datatype" default:"auto-detect" validate:"oneof=auto-detect auto buffer utf8 json base64"`
	QoS      int    `mapstructure:"qos"      validate:"min=0,max=2"`
}

// InNode emits every message the broker receives on its topic.
type InNode struct {
	flow.Base

	flows  *flow.Set
	broker *BrokerNode
	cfg    InConfig
}

func NewInNode(opts flow.Options, flows *flow.Set) *InNode {
	return &InNode{Base: flow.NewBase(opts), flows: flows}
}

func (n *InNode) OnSetup(item models.Item) error {
	if err := config.Decode(item.Config, &n.cfg); err != nil {
		return err
	}

	if strings.ContainsAny(n.cfg.Topic, "+#") {
		return config.Unimplemented("wildcard topic " + n.cfg.Topic)
	}

	broker, err := resolveBroker(n.flows, n.cfg.Broker)
	if err != nil {
		return err
	}

	n.broker = broker

	return nil
}

func (n *InNode) OnStart(context.Context) error {
	return n.broker.Subscribe(n, n.cfg.Topic, n.cfg.Datatype, byte(n.cfg.QoS))
}

func (n *InNode) OnStop(context.Context) error {
	if n.broker == nil {
		return nil
	}

	return n.broker.Unsubscribe(n, n.cfg.Topic)
}

// resolveBroker finds a broker node, looking in the configuration flow first.
func resolveBroker(flows *flow.Set, id string) (*BrokerNode, error) {
	if flows == nil {
		return nil, fmt.Errorf("%w: %s", ErrBrokerNotFound, id)
	}

	node, ok := flows.Node(models.ConfigFlowID, id)
	if !ok {
		node, ok = flows.FindNode(id)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBrokerNotFound, id)
	}

	broker, ok := node.(*BrokerNode)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", ErrBrokerNotFound, id, node.Type())
	}

	return broker, nil
}
