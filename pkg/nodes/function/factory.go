package function

import (
	"context"

	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/protocol"
)

const TypeName = "function"

type FunctionNodeFactory struct{}

func (f *FunctionNodeFactory) Create(_ context.Context, opts flow.Options, deps protocol.Dependencies) (flow.Node, error) {
	return NewNode(opts, deps.Evaluators), nil
}

func (f *FunctionNodeFactory) ID() string {
	return TypeName
}

func (f *FunctionNodeFactory) Name() string {
	return "Function"
}

func (f *FunctionNodeFactory) Description() string {
	return "Runs an expr or risor function against each message with node, flow and global context"
}

func (f *FunctionNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"func": map[string]any{
				"type":        "string",
				"description": "Code run for every message. msg holds the message fields; the result becomes the next message.",
				"examples": []string{
					`{"payload": msg.payload * 2, "topic": msg.topic}`,
					`msg.payload > 10 ? msg : null`,
				},
			},
			"initialize": map[string]any{
				"type":        "string",
				"description": "Code run once at setup",
			},
			"finalize": map[string]any{
				"type":        "string",
				"description": "Code run once when the node stops",
			},
			"language": map[string]any{
				"type":    "string",
				"enum":    []string{"expr", "risor"},
				"default": "expr",
			},
		},
	}
}

func NewFunctionNodeFactory() protocol.NodeFactory {
	return &FunctionNodeFactory{}
}
