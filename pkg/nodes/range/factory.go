package rangenode

import (
	"context"

	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/protocol"
)

const TypeName = "range"

type RangeNodeFactory struct{}

func (f *RangeNodeFactory) Create(_ context.Context, opts flow.Options, _ protocol.Dependencies) (flow.Node, error) {
	return NewNode(opts), nil
}

func (f *RangeNodeFactory) ID() string {
	return TypeName
}

func (f *RangeNodeFactory) Name() string {
	return "Range"
}

func (f *RangeNodeFactory) Description() string {
	return "Maps a numeric property from one range onto another, optionally clamping, wrapping or dropping out of range input"
}

func (f *RangeNodeFactory) Schema() map[string]any {
	number := map[string]any{"type": []string{"number", "string"}}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"minin":    number,
			"maxin":    number,
			"minout":   number,
			"maxout":   number,
			"property": map[string]any{"type": "string", "default": "payload"},
			"round":    map[string]any{"type": "boolean"},
			"action": map[string]any{
				"type":    "string",
				"enum":    []string{ActionScale, ActionClamp, ActionRoll, ActionDrop},
				"default": ActionScale,
			},
		},
		"required": []string{"minin", "maxin", "minout", "maxout"},
	}
}

func NewRangeNodeFactory() protocol.NodeFactory {
	return &RangeNodeFactory{}
}
