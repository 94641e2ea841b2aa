package link

import (
	"github.com/dukex/microred/pkg/config"
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/models"
)

const (
	ModeLink   = "link"
	ModeReturn = "return"
)

type OutConfig struct {
	Mode string `mapstructure:"mode" default:"link" validate:"oneof=link return"`
}

// OutNode forwards messages to its link targets, or in return mode back to the
// link call that is waiting for them.
type OutNode struct {
	flow.Base

	mode string
}

func NewOutNode(opts flow.Options) *OutNode {
	return &OutNode{Base: flow.NewBase(opts)}
}

func (n *OutNode) OnSetup(item models.Item) error {
	var cfg OutConfig
	if err := config.Decode(item.Config, &cfg); err != nil {
		return err
	}

	n.mode = cfg.Mode

	return nil
}

func (n *OutNode) OnMessage(msg *models.Message) (*models.Message, error) {
	if n.mode == ModeReturn {
		source := msg.LinkSource
		if source == nil {
			return nil, ErrLostLinkSource
		}

		msg.LinkSource = nil

		return nil, source.Respond(msg)
	}

	for _, target := range n.Links() {
		if err := target.Send(msg); err != nil {
			return nil, err
		}
	}

	return nil, nil
}
