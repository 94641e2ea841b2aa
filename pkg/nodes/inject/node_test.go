package inject

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/microred/pkg/config"
	"github.com/dukex/microred/pkg/eventloop"
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/flow/flowtest"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	clock     *clockwork.FakeClock
	loop      *eventloop.Loop
	flow      *flow.Flow
	node      *Node
	collector *flowtest.Collector
}

func newFixture(t *testing.T, raw map[string]any) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(epoch)
	loop := eventloop.New(eventloop.WithClock(clock))
	t.Cleanup(loop.Close)

	f := flow.New("f1", "Flow 1", flow.NewContext())

	node := NewNode(flow.Options{ID: "inj", Type: TypeName, Flow: f}, loop, nil)
	collector := flowtest.NewCollector("out", f).Start(t)
	flowtest.Wire(t, node, collector)

	flowtest.Start(t, node, flowtest.Item(t, TypeName, "inj", raw))

	t.Cleanup(func() { _ = flow.Stop(context.Background(), node) })

	return &fixture{clock: clock, loop: loop, flow: f, node: node, collector: collector}
}

func TestInjectNode_OnceOnStart(t *testing.T) {
	fx := newFixture(t, map[string]any{
		"payload":     "hello",
		"payloadType": "str",
		"repeat":      "",
		"once":        false,
	})

	assert.Empty(t, fx.collector.Messages())

	fx.loop.RunPending()
	assert.Equal(t, []any{"hello"}, fx.collector.Payloads())

	fx.loop.RunPending()
	assert.Len(t, fx.collector.Messages(), 1)
}

func TestInjectNode_Repeat(t *testing.T) {
	fx := newFixture(t, map[string]any{
		"payload":     "1",
		"payloadType": "num",
		"repeat":      "2",
	})

	fx.loop.RunPending()
	require.Len(t, fx.collector.Messages(), 1)

	fx.clock.Advance(2 * time.Second)

	require.Eventually(t, func() bool {
		fx.loop.RunPending()

		return len(fx.collector.Messages()) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []any{1.0, 1.0}, fx.collector.Payloads())
}

func TestInjectNode_OnceDelay(t *testing.T) {
	fx := newFixture(t, map[string]any{
		"payload":     true,
		"payloadType": "bool",
		"once":        true,
		"onceDelay":   "0.5",
	})

	fx.loop.RunPending()
	assert.Empty(t, fx.collector.Messages())

	fx.clock.Advance(500 * time.Millisecond)

	require.Eventually(t, func() bool {
		fx.loop.RunPending()

		return len(fx.collector.Messages()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []any{true}, fx.collector.Payloads())
}

func TestInjectNode_StopClearsTimers(t *testing.T) {
	fx := newFixture(t, map[string]any{"payloadType": "date", "repeat": 1})

	fx.loop.RunPending()
	require.Len(t, fx.collector.Messages(), 1)

	require.NoError(t, flow.Stop(context.Background(), fx.node))

	fx.clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	fx.loop.RunPending()

	assert.Len(t, fx.collector.Messages(), 1)
}

func TestInjectNode_Crontab(t *testing.T) {
	fx := newFixture(t, map[string]any{
		"payload":     "tick",
		"payloadType": "str",
		"crontab":     "*/5 * * * *",
	})

	fx.loop.RunPending()
	assert.Empty(t, fx.collector.Messages())

	fx.clock.Advance(5 * time.Minute)

	require.Eventually(t, func() bool {
		fx.loop.RunPending()

		return len(fx.collector.Messages()) == 1
	}, time.Second, 5*time.Millisecond)

	fx.clock.Advance(5 * time.Minute)

	require.Eventually(t, func() bool {
		fx.loop.RunPending()

		return len(fx.collector.Messages()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestInjectNode_Properties(t *testing.T) {
	t.Setenv("MICRORED_SITE", "lab")

	fx := newFixture(t, map[string]any{
		"payload":     `{"a":[1,2]}`,
		"payloadType": "json",
		"topic":       "sensors/t",
		"props": []any{
			map[string]any{"p": "payload"},
			map[string]any{"p": "topic", "vt": "str"},
			map[string]any{"p": "at", "vt": "date"},
			map[string]any{"p": "site", "v": "MICRORED_SITE", "vt": "env"},
			map[string]any{"p": "unit", "v": "unit", "vt": "flow"},
			map[string]any{"p": "enabled", "v": "true", "vt": "bool"},
		},
	})

	fx.flow.Context().Set("unit", "C")

	require.NoError(t, fx.node.Trigger())

	msgs := fx.collector.Messages()
	require.Len(t, msgs, 1)

	msg := msgs[0]
	assert.Equal(t, map[string]any{"a": []any{1.0, 2.0}}, msg.Payload())
	assert.Equal(t, "sensors/t", msg.Topic())

	at, _ := msg.Get("at")
	assert.Equal(t, epoch.UnixMilli(), at)

	site, _ := msg.Get("site")
	assert.Equal(t, "lab", site)

	unit, _ := msg.Get("unit")
	assert.Equal(t, "C", unit)

	enabled, _ := msg.Get("enabled")
	assert.Equal(t, true, enabled)
}

func TestInjectNode_JSONValuesNotShared(t *testing.T) {
	fx := newFixture(t, map[string]any{"payload": `{"n":1}`, "payloadType": "json", "repeat": 60})

	require.NoError(t, fx.node.Trigger())
	require.NoError(t, fx.node.Trigger())

	payloads := fx.collector.Payloads()
	require.Len(t, payloads, 2)

	payloads[0].(map[string]any)["n"] = 2.0
	assert.Equal(t, 1.0, payloads[1].(map[string]any)["n"])
}

func TestInjectNode_TriggerWithOverrides(t *testing.T) {
	fx := newFixture(t, map[string]any{
		"payload":     `{"n":1}`,
		"payloadType": "json",
		"topic":       "t1",
		"repeat":      60,
	})

	require.NoError(t, fx.node.TriggerWith(map[string]any{"payload": 42}))

	msgs := fx.collector.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, 42, msgs[0].Payload())
	assert.Equal(t, "t1", msgs[0].Topic())
}

func TestInjectNode_InvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]any
		expected error
	}{
		{
			name:     "unknown property type",
			raw:      map[string]any{"payload": "x", "payloadType": "jsonata"},
			expected: config.ErrUnimplemented,
		},
		{
			name:     "bad number",
			raw:      map[string]any{"payload": "abc", "payloadType": "num"},
			expected: config.ErrInvalidConfig,
		},
		{
			name:     "bad json",
			raw:      map[string]any{"payload": "{", "payloadType": "json"},
			expected: config.ErrInvalidConfig,
		},
		{
			name:     "repeat with crontab",
			raw:      map[string]any{"repeat": 5, "crontab": "* * * * *"},
			expected: ErrRepeatAndCrontab,
		},
		{
			name:     "bad crontab",
			raw:      map[string]any{"crontab": "every minute"},
			expected: config.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := NewNode(flow.Options{ID: "inj", Type: TypeName}, eventloop.New(), nil)

			err := flow.Setup(node, flowtest.Item(t, TypeName, "inj", tt.raw))
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}
