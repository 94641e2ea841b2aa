package link

import (
	"fmt"

	"github.com/dukex/microred/pkg/config"
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/models"
)

type CallConfig struct {
	// Timeout is in seconds.
	Timeout  float64 `mapstructure:"timeout"`
	LinkType string  `mapstructure:"linkType" default:"static"`
}

// CallNode sends each message into its link in target and forwards the reply,
// if one ever arrives through a return mode link out, on its own outputs.
type CallNode struct {
	flow.Base
}

func NewCallNode(opts flow.Options) *CallNode {
	return &CallNode{Base: flow.NewBase(opts)}
}

func (n *CallNode) OnSetup(item models.Item) error {
	var cfg CallConfig
	if err := config.Decode(item.Config, &cfg); err != nil {
		return err
	}

	if cfg.LinkType != "static" {
		return config.Unimplemented("linkType " + cfg.LinkType)
	}

	if len(n.Links()) == 0 {
		return fmt.Errorf("%w: %s", ErrNoLinkTarget, n.ID())
	}

	if cfg.Timeout != 0 {
		n.Logger().Warn("Link call timeout unimplemented, calls wait indefinitely", "timeout", cfg.Timeout)
	}

	return nil
}

// OnMessage tags a clone of msg with this node's return address and sends it
// from the first link target. The reply is asynchronous, so nothing is returned.
func (n *CallNode) OnMessage(msg *models.Message) (*models.Message, error) {
	targets := n.Links()
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoLinkTarget, n.ID())
	}

	tagged := msg.Clone()
	tagged.LinkSource = &returnAddress{call: n, previous: msg.LinkSource}

	return nil, targets[0].Send(tagged)
}

// Respond forwards a reply on the node's outputs.
func (n *CallNode) Respond(msg *models.Message) error {
	return n.Send(msg)
}
