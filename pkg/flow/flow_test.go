package flow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/flow/flowtest"
	"github.com/dukex/microred/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hooks counts lifecycle callbacks and optionally fails them.
type hooks struct {
	flow.Base

	setups, starts, stops int
	startErr, stopErr     error
	reply                 func(*models.Message) *models.Message
}

func newHooks(id string) *hooks {
	return &hooks{Base: flow.NewBase(flow.Options{ID: id, Type: "hooks"})}
}

func (h *hooks) OnSetup(models.Item) error {
	h.setups++

	return nil
}

func (h *hooks) OnStart(context.Context) error {
	h.starts++

	return h.startErr
}

func (h *hooks) OnStop(context.Context) error {
	h.stops++

	return h.stopErr
}

func (h *hooks) OnMessage(msg *models.Message) (*models.Message, error) {
	if h.reply == nil {
		return nil, nil
	}

	return h.reply(msg), nil
}

func TestLifecycle_Transitions(t *testing.T) {
	ctx := context.Background()
	n := newHooks("n1")

	assert.Equal(t, flow.StateConstructed, n.State())
	require.ErrorIs(t, flow.Start(ctx, n), flow.ErrInvalidTransition)

	require.NoError(t, flow.Setup(n, models.Item{}))
	assert.Equal(t, flow.StateConfigured, n.State())
	require.ErrorIs(t, flow.Setup(n, models.Item{}), flow.ErrInvalidTransition)

	require.NoError(t, flow.Start(ctx, n))
	assert.Equal(t, flow.StateRunning, n.State())

	require.NoError(t, flow.Stop(ctx, n))
	require.NoError(t, flow.Stop(ctx, n))
	assert.Equal(t, flow.StateStopped, n.State())
	assert.Equal(t, 1, n.stops)

	require.ErrorIs(t, flow.Start(ctx, n), flow.ErrInvalidTransition)
}

func TestLifecycle_StopConstructedSkipsHook(t *testing.T) {
	n := newHooks("n1")

	require.NoError(t, flow.Stop(context.Background(), n))
	assert.Equal(t, flow.StateStopped, n.State())
	assert.Zero(t, n.stops)
}

func TestLifecycle_StopConfiguredRunsHook(t *testing.T) {
	n := newHooks("n1")
	n.stopErr = errors.New("busy")

	require.NoError(t, flow.Setup(n, models.Item{}))

	err := flow.Stop(context.Background(), n)
	require.ErrorIs(t, err, n.stopErr)
	assert.Equal(t, 1, n.stops)
	assert.Equal(t, flow.StateStopped, n.State())
}

func TestLifecycle_FailedStartStaysConfigured(t *testing.T) {
	n := newHooks("n1")
	n.startErr = errors.New("no port")

	require.NoError(t, flow.Setup(n, models.Item{}))
	require.ErrorIs(t, flow.Start(context.Background(), n), n.startErr)
	assert.Equal(t, flow.StateConfigured, n.State())
}

func TestReceive_RefusedUnlessRunning(t *testing.T) {
	c := flowtest.NewCollector("c", nil)

	err := flow.Receive(c, models.NewPayloadMessage("x"))
	require.ErrorIs(t, err, flow.ErrNodeNotRunning)

	var de *flow.DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "c", de.NodeID)
	assert.Empty(t, c.Messages())

	c.Start(t)
	require.NoError(t, flow.Stop(context.Background(), c))
	require.ErrorIs(t, flow.Receive(c, models.NewPayloadMessage("x")), flow.ErrNodeNotRunning)
}

func TestSend_FanOutClonesPerTarget(t *testing.T) {
	src := newHooks("src")
	a := flowtest.NewCollector("a", nil)
	b := flowtest.NewCollector("b", nil)

	flowtest.Wire(t, src, a, b)
	flowtest.Start(t, src, models.Item{})
	a.Start(t)
	b.Start(t)

	nested := map[string]any{"k": 1}
	msg := models.NewPayloadMessage("p")
	msg.Set("nested", nested)

	require.NoError(t, src.Send(msg))

	require.Len(t, a.Messages(), 1)
	require.Len(t, b.Messages(), 1)

	got := a.Messages()[0]
	assert.NotSame(t, msg, got)
	assert.NotSame(t, got, b.Messages()[0])

	got.Set("payload", "changed")
	assert.Equal(t, "p", msg.Payload())
	assert.Equal(t, "p", b.Messages()[0].Payload())

	shared, _ := got.Get("nested")
	shared.(map[string]any)["k"] = 2
	assert.Equal(t, 2, nested["k"])
}

func TestSend_FirstErrorAbortsRemainingTargets(t *testing.T) {
	src := newHooks("src")
	a := flowtest.NewCollector("a", nil)
	b := flowtest.NewCollector("b", nil)
	a.Err = errors.New("rejected")

	flowtest.Wire(t, src, a, b)
	flowtest.Start(t, src, models.Item{})
	a.Start(t)
	b.Start(t)

	err := src.Send(models.NewPayloadMessage(1))

	var de *flow.DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "a", de.NodeID)
	assert.Empty(t, b.Messages())
}

func TestReceive_ForwardsResultAndKeepsInnermostError(t *testing.T) {
	relay := newHooks("relay")
	relay.reply = func(msg *models.Message) *models.Message { return msg }

	sink := flowtest.NewCollector("sink", nil)
	sink.Err = errors.New("full")

	flowtest.Wire(t, relay, sink)
	flowtest.Start(t, relay, models.Item{})
	sink.Start(t)

	err := flow.Receive(relay, models.NewPayloadMessage(1))

	var de *flow.DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "sink", de.NodeID)
	assert.ErrorIs(t, err, sink.Err)
}

func TestSend_NoOutputs(t *testing.T) {
	n := newHooks("n1")

	require.NoError(t, n.Send(models.NewPayloadMessage(1)))
	require.NoError(t, n.Send(nil))
	assert.Zero(t, n.OutputCount())
}

func TestSendPorts(t *testing.T) {
	src := newHooks("src")
	a := flowtest.NewCollector("a", nil)

	flowtest.Wire(t, src, a)
	flowtest.Start(t, src, models.Item{})
	a.Start(t)

	require.NoError(t, src.SendPorts(nil))
	require.NoError(t, src.SendPorts([]*models.Message{models.NewPayloadMessage(1)}))
	require.ErrorIs(t, src.SendPorts([]*models.Message{models.NewPayloadMessage(2), models.NewPayloadMessage(3)}), flow.ErrMultipleOutputs)

	assert.Equal(t, []any{1}, a.Payloads())
}

func TestSetOutputs_Frozen(t *testing.T) {
	n := newHooks("n1")
	target := newHooks("t")

	ports := [][]flow.Node{{target}}
	require.NoError(t, n.SetOutputs(ports))
	require.ErrorIs(t, n.SetOutputs(ports), flow.ErrOutputsFrozen)

	ports[0][0] = nil
	assert.Equal(t, []flow.Node{target}, n.Targets(0))
	assert.Nil(t, n.Targets(3))

	late := newHooks("late")
	require.NoError(t, flow.Setup(late, models.Item{}))
	assert.ErrorIs(t, late.SetOutputs(nil), flow.ErrOutputsFrozen)
}

func TestSet_Resolution(t *testing.T) {
	set := flow.NewSet()

	cfg, err := set.Create(models.ConfigFlowID, "")
	require.NoError(t, err)

	f1, err := set.Create("f1", "Main")
	require.NoError(t, err)

	_, err = set.Create("f1", "again")
	require.ErrorIs(t, err, flow.ErrDuplicateFlow)

	a := newHooks("a")
	require.NoError(t, f1.AddNode(a))
	require.ErrorIs(t, f1.AddNode(newHooks("a")), flow.ErrDuplicateNode)

	require.NoError(t, cfg.AddNode(newHooks("broker")))

	found, ok := set.FindNode("a")
	require.True(t, ok)
	assert.Same(t, a, found)

	_, ok = set.Node(models.ConfigFlowID, "a")
	assert.False(t, ok)

	_, ok = set.Node("nope", "a")
	assert.False(t, ok)

	assert.Same(t, set.Global(), f1.Global())
	assert.Same(t, cfg.Global(), f1.Global())
	assert.NotSame(t, cfg.Context(), f1.Context())
	assert.Equal(t, []*flow.Flow{cfg, f1}, set.Flows())
}

func TestContext(t *testing.T) {
	c := flow.NewContext()

	assert.Nil(t, c.Get("missing"))

	c.Set("b", 1)
	c.Set("a", 2)
	c.Set("b", 3)

	v, ok := c.Lookup("b")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, []string{"a", "b"}, c.Keys())

	c.Delete("a")
	assert.Equal(t, 1, c.Len())
}
