package link

import (
	"context"

	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/protocol"
)

type LinkInNodeFactory struct{}

func (f *LinkInNodeFactory) Create(_ context.Context, opts flow.Options, _ protocol.Dependencies) (flow.Node, error) {
	return NewInNode(opts), nil
}

func (f *LinkInNodeFactory) ID() string {
	return TypeIn
}

func (f *LinkInNodeFactory) Name() string {
	return "Link In"
}

func (f *LinkInNodeFactory) Description() string {
	return "Entry point addressed by link out and link call nodes, in any flow"
}

func (f *LinkInNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"links": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
}

func NewLinkInNodeFactory() protocol.NodeFactory {
	return &LinkInNodeFactory{}
}

type LinkOutNodeFactory struct{}

func (f *LinkOutNodeFactory) Create(_ context.Context, opts flow.Options, _ protocol.Dependencies) (flow.Node, error) {
	return NewOutNode(opts), nil
}

func (f *LinkOutNodeFactory) ID() string {
	return TypeOut
}

func (f *LinkOutNodeFactory) Name() string {
	return "Link Out"
}

func (f *LinkOutNodeFactory) Description() string {
	return "Sends messages to link in nodes, or back to the calling link call node in return mode"
}

func (f *LinkOutNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mode": map[string]any{
				"type":    "string",
				"enum":    []string{ModeLink, ModeReturn},
				"default": ModeLink,
			},
			"links": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Ids of link in nodes; ignored in return mode",
			},
		},
	}
}

func NewLinkOutNodeFactory() protocol.NodeFactory {
	return &LinkOutNodeFactory{}
}

type LinkCallNodeFactory struct{}

func (f *LinkCallNodeFactory) Create(_ context.Context, opts flow.Options, _ protocol.Dependencies) (flow.Node, error) {
	return NewCallNode(opts), nil
}

func (f *LinkCallNodeFactory) ID() string {
	return TypeCall
}

func (f *LinkCallNodeFactory) Name() string {
	return "Link Call"
}

func (f *LinkCallNodeFactory) Description() string {
	return "Calls a link in node and emits the reply returned by a link out in return mode"
}

func (f *LinkCallNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"links": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"minItems": 1,
			},
			"linkType": map[string]any{"type": "string", "enum": []string{"static"}},
			"timeout":  map[string]any{"type": []string{"number", "string"}},
		},
		"required": []string{"links"},
	}
}

func NewLinkCallNodeFactory() protocol.NodeFactory {
	return &LinkCallNodeFactory{}
}
