// Package engine builds a live flow graph from a flat list of flow items and
// tears it down again.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/dukex/microred/pkg/eventloop"
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/metrics"
	"github.com/dukex/microred/pkg/models"
)

// Graph is a built set of flows. Its methods must run on the event loop.
type Graph struct {
	flows   *flow.Set
	loop    *eventloop.Loop
	logger  *slog.Logger
	metrics *metrics.Metrics

	// nodes in item order, with the item each was built from
	nodes []flow.Node
	items map[string]models.Item
}

func newGraph(loop *eventloop.Loop, logger *slog.Logger, m *metrics.Metrics) *Graph {
	return &Graph{
		flows:   flow.NewSet(),
		loop:    loop,
		logger:  logger,
		metrics: m,
		items:   make(map[string]models.Item),
	}
}

// Flows returns the flow resolution handle.
func (g *Graph) Flows() *flow.Set {
	return g.flows
}

// Loop returns the event loop the graph runs on.
func (g *Graph) Loop() *eventloop.Loop {
	return g.loop
}

// Node finds a node by id in any flow.
func (g *Graph) Node(id string) (flow.Node, bool) {
	return g.flows.FindNode(id)
}

// Nodes returns every node in item order.
func (g *Graph) Nodes() []flow.Node {
	return slices.Clone(g.nodes)
}

// Item returns the flow item a node was built from.
func (g *Graph) Item(id string) (models.Item, bool) {
	item, ok := g.items[id]

	return item, ok
}

// Running counts the nodes in the Running state.
func (g *Graph) Running() int {
	count := 0

	for _, n := range g.nodes {
		if n.Core().State() == flow.StateRunning {
			count++
		}
	}

	return count
}

// Stop stops every node in reverse item order, so nodes are stopped before the
// configuration nodes they depend on. All nodes are stopped even when some fail;
// the failures are joined.
func (g *Graph) Stop(ctx context.Context) error {
	var errs []error

	for i := len(g.nodes) - 1; i >= 0; i-- {
		if err := flow.Stop(ctx, g.nodes[i]); err != nil {
			g.logger.Error("Failed to stop node", "node_id", g.nodes[i].ID(), "error", err)
			errs = append(errs, err)
		}
	}

	g.metrics.SetNodesRunning(g.Running())

	return errors.Join(errs...)
}
