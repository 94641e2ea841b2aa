// Package flowtest provides helpers for testing nodes outside a built graph.
package flowtest

import (
	"context"
	"sync"
	"testing"

	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/models"
	"github.com/stretchr/testify/require"
)

// Collector records every message it receives.
type Collector struct {
	flow.Base

	// Err, when set, is returned from every delivery.
	Err error

	mu       sync.Mutex
	messages []*models.Message
}

func NewCollector(id string, f *flow.Flow) *Collector {
	return &Collector{Base: flow.NewBase(flow.Options{ID: id, Type: "collector", Flow: f})}
}

func (c *Collector) OnMessage(msg *models.Message) (*models.Message, error) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	return nil, c.Err
}

// Messages returns the received messages in arrival order.
func (c *Collector) Messages() []*models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*models.Message(nil), c.messages...)
}

// Payloads returns the payload of every received message.
func (c *Collector) Payloads() []any {
	msgs := c.Messages()

	payloads := make([]any, len(msgs))
	for i, msg := range msgs {
		payloads[i] = msg.Payload()
	}

	return payloads
}

// Item builds a flow item the way a flow file would describe it.
func Item(t testing.TB, typ, id string, raw map[string]any) models.Item {
	t.Helper()

	entry := make(map[string]any, len(raw)+2)
	for k, v := range raw {
		entry[k] = v
	}

	entry["type"] = typ
	entry["id"] = id

	item, err := models.ItemFromMap(entry)
	require.NoError(t, err)

	return item
}

// Start sets n up with item and starts it.
func Start(t testing.TB, n flow.Node, item models.Item) {
	t.Helper()

	require.NoError(t, flow.Setup(n, item))
	require.NoError(t, flow.Start(context.Background(), n))
}

// Wire connects from's single output port to targets.
func Wire(t testing.TB, from flow.Node, targets ...flow.Node) {
	t.Helper()

	require.NoError(t, from.SetOutputs([][]flow.Node{targets}))
}

// Start sets up and starts a collector, which accepts any item.
func (c *Collector) Start(t testing.TB) *Collector {
	t.Helper()

	Start(t, c, models.Item{ID: c.ID(), Type: c.Type()})

	return c
}
