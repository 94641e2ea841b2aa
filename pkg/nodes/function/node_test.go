package function

import (
	"context"
	"testing"

	"github.com/dukex/microred/pkg/config"
	"github.com/dukex/microred/pkg/evaluator"
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/flow/flowtest"
	"github.com/dukex/microred/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFunction(t *testing.T, f *flow.Flow, raw map[string]any) (*Node, *flowtest.Collector) {
	t.Helper()

	node := NewNode(flow.Options{ID: "fn1", Type: TypeName, Name: "double", Flow: f}, nil)
	out := flowtest.NewCollector("out", f).Start(t)

	flowtest.Wire(t, node, out)
	flowtest.Start(t, node, flowtest.Item(t, TypeName, "fn1", raw))

	return node, out
}

func TestFunctionNode_Results(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		input    any
		expected []any
	}{
		{
			name:     "returns new message",
			source:   `{"payload": msg.payload * 2}`,
			input:    21,
			expected: []any{42},
		},
		{
			name:     "returns the input message",
			source:   `msg`,
			input:    "same",
			expected: []any{"same"},
		},
		{
			name:     "returns nothing",
			source:   `msg.payload > 10 ? msg : null`,
			input:    3,
			expected: []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, out := newFunction(t, nil, map[string]any{"func": tt.source})

			require.NoError(t, flow.Receive(node, models.NewPayloadMessage(tt.input)))
			assert.ElementsMatch(t, tt.expected, out.Payloads())
		})
	}
}

func TestFunctionNode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		err    error
	}{
		{name: "multiple outputs", source: `[msg, msg]`, err: flow.ErrMultipleOutputs},
		{name: "single element array", source: `[msg]`, err: flow.ErrMultipleOutputs},
		{name: "empty array", source: `[]`, err: flow.ErrMultipleOutputs},
		{name: "scalar result", source: `42`, err: ErrInvalidResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, out := newFunction(t, nil, map[string]any{"func": tt.source})

			err := flow.Receive(node, models.NewPayloadMessage(1))
			require.ErrorIs(t, err, tt.err)
			assert.Empty(t, out.Messages())
		})
	}
}

func TestFunctionNode_KeepsLinkSource(t *testing.T) {
	node, out := newFunction(t, nil, map[string]any{"func": `{"payload": "reply"}`})

	msg := models.NewPayloadMessage("request")
	msg.LinkSource = &fakeResponder{}

	require.NoError(t, flow.Receive(node, msg))
	require.Len(t, out.Messages(), 1)
	assert.Same(t, msg.LinkSource, out.Messages()[0].LinkSource)
}

func TestFunctionNode_Contexts(t *testing.T) {
	global := flow.NewContext()
	f := flow.New("f1", "Flow 1", global)

	node, out := newFunction(t, f, map[string]any{
		"initialize": `context.Set("count", 0)`,
		"func": `{
			"payload": context.Set("count", context.Get("count") + 1),
			"flow": flow.Set("last", msg.payload),
			"global": global.Set("seen", true),
			"node": node.name
		}`,
		"finalize": `global.Set("finalized", context.Get("count"))`,
	})

	assert.Equal(t, 0, node.Context().Get("count"))

	require.NoError(t, flow.Receive(node, models.NewPayloadMessage("a")))
	require.NoError(t, flow.Receive(node, models.NewPayloadMessage("b")))

	assert.Equal(t, []any{1, 2}, out.Payloads())
	assert.Equal(t, "b", f.Context().Get("last"))
	assert.Equal(t, true, global.Get("seen"))

	last, _ := out.Messages()[1].Get("node")
	assert.Equal(t, "double", last)

	require.NoError(t, flow.Stop(context.Background(), node))
	assert.Equal(t, 2, global.Get("finalized"))
}

func TestFunctionNode_Risor(t *testing.T) {
	node, out := newFunction(t, nil, map[string]any{
		"language": "risor",
		"func":     "out := {\"payload\": msg[\"payload\"] + \"!\"}\nout",
	})

	require.NoError(t, flow.Receive(node, models.NewPayloadMessage("hi")))
	assert.Equal(t, []any{"hi!"}, out.Payloads())
}

func TestFunctionNode_SetupErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		err  error
	}{
		{name: "libs", raw: map[string]any{"func": "msg", "libs": []any{map[string]any{"var": "os"}}}, err: config.ErrUnimplemented},
		{name: "language", raw: map[string]any{"func": "msg", "language": "cobol"}, err: evaluator.ErrUnknownLanguage},
		{name: "compile", raw: map[string]any{"func": "msg.payload +"}, err: evaluator.ErrCompile},
		{name: "risor compile", raw: map[string]any{"func": "out := {{{ not valid", "language": "risor"}, err: evaluator.ErrCompile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := NewNode(flow.Options{ID: "fn1", Type: TypeName}, nil)

			err := flow.Setup(node, flowtest.Item(t, TypeName, "fn1", tt.raw))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

type fakeResponder struct{}

func (*fakeResponder) ID() string                    { return "call" }
func (*fakeResponder) Respond(*models.Message) error { return nil }
