package debug

import (
	"context"

	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/protocol"
)

const TypeName = "debug"

type DebugNodeFactory struct{}

func (f *DebugNodeFactory) Create(_ context.Context, opts flow.Options, _ protocol.Dependencies) (flow.Node, error) {
	return NewNode(opts), nil
}

func (f *DebugNodeFactory) ID() string {
	return TypeName
}

func (f *DebugNodeFactory) Name() string {
	return "Debug"
}

func (f *DebugNodeFactory) Description() string {
	return "Reports the whole message or one of its properties as JSON to the log and the sidebar"
}

func (f *DebugNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"complete": map[string]any{
				"type":        "string",
				"description": "Property path to report, or \"true\" for the whole message",
				"default":     "payload",
				"examples":    []string{"payload", "true", "payload.temperature"},
			},
			"console": map[string]any{
				"type":        "boolean",
				"description": "Write the value to the process log",
			},
			"tosidebar": map[string]any{
				"type":        "boolean",
				"description": "Keep the value in the sidebar history",
				"default":     true,
			},
		},
	}
}

func NewDebugNodeFactory() protocol.NodeFactory {
	return &DebugNodeFactory{}
}
