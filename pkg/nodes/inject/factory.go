package inject

import (
	"context"

	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/protocol"
)

const TypeName = "inject"

type InjectNodeFactory struct{}

func (f *InjectNodeFactory) Create(_ context.Context, opts flow.Options, deps protocol.Dependencies) (flow.Node, error) {
	return NewNode(opts, deps.Loop, deps.Tracer), nil
}

func (f *InjectNodeFactory) ID() string {
	return TypeName
}

func (f *InjectNodeFactory) Name() string {
	return "Inject"
}

func (f *InjectNodeFactory) Description() string {
	return "Injects a message built from typed properties once, at an interval or on a cron schedule"
}

func (f *InjectNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"once": map[string]any{
				"type":        "boolean",
				"description": "Delay the first injection by onceDelay seconds",
			},
			"onceDelay": map[string]any{
				"type":        []string{"number", "string"},
				"description": "Seconds to wait before the first injection",
			},
			"repeat": map[string]any{
				"type":        []string{"number", "string"},
				"description": "Seconds between injections; empty injects once",
			},
			"crontab": map[string]any{
				"type":        "string",
				"description": "Standard five field cron expression",
				"examples":    []string{"*/5 * * * *", "0 8 * * 1-5"},
			},
			"payload":     map[string]any{},
			"payloadType": map[string]any{"type": "string", "enum": []string{"bool", "date", "json", "num", "str", "flow", "global", "env"}},
			"topic":       map[string]any{"type": "string"},
			"props": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"p":  map[string]any{"type": "string"},
						"v":  map[string]any{},
						"vt": map[string]any{"type": "string"},
					},
					"required": []string{"p"},
				},
			},
		},
	}
}

func NewInjectNodeFactory() protocol.NodeFactory {
	return &InjectNodeFactory{}
}
