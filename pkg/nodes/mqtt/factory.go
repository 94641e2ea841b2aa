package mqtt

import (
	"context"

	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/protocol"
)

const (
	TypeBroker = "mqtt-broker"
	TypeIn     = "mqtt in"
	TypeOut    = "mqtt out"
)

type BrokerNodeFactory struct{}

func (f *BrokerNodeFactory) Create(_ context.Context, opts flow.Options, deps protocol.Dependencies) (flow.Node, error) {
	return NewBrokerNode(opts, deps.Loop, deps.Dialers, deps.Tracer), nil
}

func (f *BrokerNodeFactory) ID() string {
	return TypeBroker
}

func (f *BrokerNodeFactory) Name() string {
	return "MQTT Broker"
}

func (f *BrokerNodeFactory) Description() string {
	return "Shared publish/subscribe connection with an outbound queue gated by the connection's writable window"
}

func (f *BrokerNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"broker":       map[string]any{"type": "string", "description": "Host name, or URL for nats and redis"},
			"port":         map[string]any{"type": []string{"integer", "string"}},
			"clientid":     map[string]any{"type": "string"},
			"keepalive":    map[string]any{"type": []string{"integer", "string"}, "default": 60},
			"cleansession": map[string]any{"type": "boolean"},
			"transport": map[string]any{
				"type":    "string",
				"enum":    []string{"mqtt", "memory", "kafka", "redis", "nats"},
				"default": "mqtt",
			},
			"capacity": map[string]any{
				"type":        "integer",
				"description": "Outbound window in bytes",
			},
			"queueLimit": map[string]any{
				"type":        "integer",
				"description": "Maximum queued publishes; 0 is unbounded",
				"default":     DefaultQueueLimit,
			},
			"credentials": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"user":     map[string]any{"type": "string"},
					"password": map[string]any{"type": "string"},
				},
			},
		},
	}
}

func NewBrokerNodeFactory() protocol.NodeFactory {
	return &BrokerNodeFactory{}
}

type InNodeFactory struct{}

func (f *InNodeFactory) Create(_ context.Context, opts flow.Options, deps protocol.Dependencies) (flow.Node, error) {
	return NewInNode(opts, deps.Flows), nil
}

func (f *InNodeFactory) ID() string {
	return TypeIn
}

func (f *InNodeFactory) Name() string {
	return "MQTT In"
}

func (f *InNodeFactory) Description() string {
	return "Emits messages received by a broker on one exact topic"
}

func (f *InNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"broker": map[string]any{"type": "string"},
			"topic":  map[string]any{"type": "string"},
			"datatype": map[string]any{
				"type":    "string",
				"enum":    []string{FormatAutoDetect, FormatAuto, FormatBuffer, FormatUTF8, FormatJSON, FormatBase64},
				"default": FormatAutoDetect,
			},
			"qos": map[string]any{"type": []string{"integer", "string"}},
		},
		"required": []string{"broker", "topic"},
	}
}

func NewInNodeFactory() protocol.NodeFactory {
	return &InNodeFactory{}
}

type OutNodeFactory struct{}

func (f *OutNodeFactory) Create(_ context.Context, opts flow.Options, deps protocol.Dependencies) (flow.Node, error) {
	return NewOutNode(opts, deps.Flows), nil
}

func (f *OutNodeFactory) ID() string {
	return TypeOut
}

func (f *OutNodeFactory) Name() string {
	return "MQTT Out"
}

func (f *OutNodeFactory) Description() string {
	return "Publishes message payloads through a broker"
}

func (f *OutNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"broker": map[string]any{"type": "string"},
			"topic":  map[string]any{"type": "string", "description": "Empty uses msg.topic"},
			"qos":    map[string]any{"type": []string{"integer", "string"}, "description": "Empty uses msg.qos"},
			"retain": map[string]any{"type": []string{"boolean", "string"}, "description": "Empty uses msg.retain"},
		},
		"required": []string{"broker"},
	}
}

func NewOutNodeFactory() protocol.NodeFactory {
	return &OutNodeFactory{}
}
