// Package rangenode provides the range node, which maps a numeric property
// linearly from an input range onto an output range.
package rangenode

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/Jeffail/gabs/v2"
	"github.com/dukex/microred/pkg/config"
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/models"
)

const (
	ActionScale = "scale"
	ActionClamp = "clamp"
	ActionRoll  = "roll"
	ActionDrop  = "drop"
)

var ErrNotNumeric = errors.New("property is not numeric")

type Config struct {
	MinIn    float64 `mapstructure:"minin"`
	MaxIn    float64 `mapstructure:"maxin"    validate:"nefield=MinIn"`
	MinOut   float64 `mapstructure:"minout"`
	MaxOut   float64 `mapstructure:"maxout"`
	Property string  `mapstructure:"property" default:"payload" validate:"required"`
	Round    bool    `mapstructure:"round"`
	Action   string  `mapstructure:"action"   default:"scale"   validate:"oneof=scale clamp roll drop"`
}

type Node struct {
	flow.Base

	cfg   Config
	scale float64
}

func NewNode(opts flow.Options) *Node {
	return &Node{Base: flow.NewBase(opts)}
}

func (n *Node) OnSetup(item models.Item) error {
	if err := config.Decode(item.Config, &n.cfg); err != nil {
		return err
	}

	n.scale = (n.cfg.MaxOut - n.cfg.MinOut) / (n.cfg.MaxIn - n.cfg.MinIn)

	return nil
}

func (n *Node) OnMessage(msg *models.Message) (*models.Message, error) {
	container := gabs.Wrap(msg.Fields())

	value, err := toFloat(container.Path(n.cfg.Property).Data())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", n.cfg.Property, err)
	}

	result, ok := n.Map(value)
	if !ok {
		return nil, nil
	}

	if _, err := container.SetP(result, n.cfg.Property); err != nil {
		return nil, err
	}

	return msg, nil
}

// Map applies the configured action to v. It returns false when the drop
// action discards an out of range value.
func (n *Node) Map(v float64) (float64, bool) {
	lo, hi := math.Min(n.cfg.MinIn, n.cfg.MaxIn), math.Max(n.cfg.MinIn, n.cfg.MaxIn)

	switch n.cfg.Action {
	case ActionClamp:
		v = math.Max(lo, math.Min(hi, v))
	case ActionRoll:
		divisor := n.cfg.MaxIn - n.cfg.MinIn
		v = math.Mod(math.Mod(v-n.cfg.MinIn, divisor)+divisor, divisor) + n.cfg.MinIn
	case ActionDrop:
		if v < lo || v > hi {
			return 0, false
		}
	}

	out := (v-n.cfg.MinIn)*n.scale + n.cfg.MinOut
	if n.cfg.Round {
		out = math.Floor(out + 0.5)
	}

	return out, true
}

func toFloat(v any) (float64, error) {
	switch value := v.(type) {
	case float64:
		return value, nil
	case float32:
		return float64(value), nil
	case int:
		return float64(value), nil
	case int64:
		return float64(value), nil
	case int32:
		return float64(value), nil
	case uint8:
		return float64(value), nil
	case string:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, value)
		}

		return f, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
}
