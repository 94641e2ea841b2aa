package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/microred/pkg/channels"
	"github.com/dukex/microred/pkg/evaluator"
	"github.com/dukex/microred/pkg/eventloop"
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/log"
	"github.com/dukex/microred/pkg/metrics"
	"github.com/dukex/microred/pkg/models"
	"github.com/dukex/microred/pkg/otelhelper"
	"github.com/dukex/microred/pkg/protocol"
	"github.com/dukex/microred/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Options carry the collaborators handed to every node factory.
type Options struct {
	Registry   *registry.Registry
	Loop       *eventloop.Loop
	Logger     *slog.Logger
	Evaluators evaluator.Set
	Dialers    channels.Dialers
	Metrics    *metrics.Metrics
	Tracer     trace.Tracer
}

// Build turns items into a running graph in five ordered passes: flows, nodes,
// wires, links, then setup of every node followed by start of every node. It
// must run on the loop goroutine, or before the loop runs.
//
// On failure every node that was already set up is stopped again and no graph
// is returned.
func Build(ctx context.Context, items []models.Item, opts Options) (g *Graph, err error) {
	if opts.Registry == nil {
		return nil, errors.New("engine: registry is required")
	}

	if opts.Loop == nil {
		opts.Loop = eventloop.New()
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Evaluators == nil {
		opts.Evaluators = evaluator.Defaults()
	}

	ctx, span := otelhelper.StartSpan(ctx, opts.Tracer, "engine.build",
		attribute.Int(otelhelper.ItemCountKey, len(items)))
	defer func() { otelhelper.End(span, err) }()

	b := &builder{
		graph: newGraph(opts.Loop, opts.Logger.With("module", "engine"), opts.Metrics),
		opts:  opts,
	}
	b.deps = protocol.Dependencies{
		Logger:     opts.Logger,
		Loop:       opts.Loop,
		Flows:      b.graph.flows,
		Evaluators: opts.Evaluators,
		Dialers:    opts.Dialers,
		Metrics:    opts.Metrics,
		Tracer:     opts.Tracer,
	}

	if err := b.build(ctx, items); err != nil {
		b.graph.logger.Error("Build failed, stopping nodes", "error", err)

		if stopErr := b.graph.Stop(ctx); stopErr != nil {
			return nil, errors.Join(err, stopErr)
		}

		return nil, err
	}

	span.SetAttributes(attribute.Int(otelhelper.FlowCountKey, len(b.graph.flows.Flows())))
	opts.Metrics.SetNodesRunning(b.graph.Running())

	b.graph.logger.Info("Flows started",
		"flows", len(b.graph.flows.Flows()),
		"nodes", len(b.graph.nodes))

	return b.graph, nil
}

type builder struct {
	graph *Graph
	opts  Options
	deps  protocol.Dependencies

	disabled map[string]bool
	built    []models.Item
}

func (b *builder) build(ctx context.Context, items []models.Item) error {
	for _, pass := range []func(context.Context, []models.Item) error{
		b.createFlows,
		b.createNodes,
		b.wire,
		b.link,
		b.setup,
		b.start,
	} {
		if err := pass(ctx, items); err != nil {
			return err
		}
	}

	return nil
}

// createFlows creates a flow per enabled tab, plus the configuration flow.
func (b *builder) createFlows(_ context.Context, items []models.Item) error {
	b.disabled = make(map[string]bool)

	if _, err := b.graph.flows.Create(models.ConfigFlowID, ""); err != nil {
		return buildError(PassFlows, models.ConfigFlowID, err)
	}

	for _, item := range items {
		if !item.IsTab() || item.ID == models.ConfigFlowID {
			continue
		}

		if item.Disabled {
			b.disabled[item.ID] = true
			b.graph.logger.Info("Skipping disabled flow", log.FlowIDKey, item.ID)

			continue
		}

		if _, err := b.graph.flows.Create(item.ID, item.Label); err != nil {
			return buildError(PassFlows, item.ID, err)
		}
	}

	return nil
}

func (b *builder) createNodes(ctx context.Context, items []models.Item) error {
	for _, item := range items {
		if item.IsTab() || b.disabled[item.FlowID()] {
			continue
		}

		f, ok := b.graph.flows.Get(item.FlowID())
		if !ok {
			return buildError(PassNodes, item.ID, fmt.Errorf("%w: %s", ErrMissingFlow, item.FlowID()))
		}

		if _, exists := b.graph.items[item.ID]; exists {
			return buildError(PassNodes, item.ID, flow.ErrDuplicateNode)
		}

		node, err := b.opts.Registry.CreateNode(ctx, flow.Options{
			ID:      item.ID,
			Type:    item.Type,
			Name:    item.Name,
			Flow:    f,
			Logger:  b.opts.Logger.With(log.FlowIDKey, f.ID()),
			Metrics: b.opts.Metrics,
		}, b.deps)
		if err != nil {
			return buildError(PassNodes, item.ID, err)
		}

		if err := f.AddNode(node); err != nil {
			return buildError(PassNodes, item.ID, err)
		}

		b.graph.nodes = append(b.graph.nodes, node)
		b.graph.items[item.ID] = item
		b.built = append(b.built, item)
	}

	return nil
}

// wire freezes every node's fan-out. Targets resolve inside the node's own flow.
func (b *builder) wire(_ context.Context, _ []models.Item) error {
	for i, item := range b.built {
		node := b.graph.nodes[i]
		f := node.Flow()

		outputs := make([][]flow.Node, len(item.Wires))

		for port, targets := range item.Wires {
			outputs[port] = make([]flow.Node, 0, len(targets))

			for _, id := range targets {
				target, ok := f.Node(id)
				if !ok {
					return buildError(PassWires, item.ID,
						fmt.Errorf("%w: %s in flow %s", ErrUnresolvedWire, id, f.ID()))
				}

				outputs[port] = append(outputs[port], target)
			}
		}

		if err := node.SetOutputs(outputs); err != nil {
			return buildError(PassWires, item.ID, err)
		}
	}

	return nil
}

// link resolves link targets across every flow.
func (b *builder) link(_ context.Context, _ []models.Item) error {
	for i, item := range b.built {
		if len(item.Links) == 0 {
			continue
		}

		targets := make([]flow.Node, 0, len(item.Links))

		for _, id := range item.Links {
			target, ok := b.graph.flows.FindNode(id)
			if !ok {
				return buildError(PassLinks, item.ID, fmt.Errorf("%w: %s", ErrUnresolvedLink, id))
			}

			targets = append(targets, target)
		}

		if err := b.graph.nodes[i].SetLinks(targets); err != nil {
			return buildError(PassLinks, item.ID, err)
		}
	}

	return nil
}

// setup configures every node, in item order, before any node starts.
func (b *builder) setup(_ context.Context, _ []models.Item) error {
	for i, item := range b.built {
		if err := flow.Setup(b.graph.nodes[i], item); err != nil {
			return buildError(PassSetup, item.ID, err)
		}
	}

	return nil
}

// start runs flow by flow, node by node within a flow.
func (b *builder) start(ctx context.Context, _ []models.Item) error {
	for _, f := range b.graph.flows.Flows() {
		for _, node := range f.Nodes() {
			if err := flow.Start(ctx, node); err != nil {
				return buildError(PassStart, node.ID(), err)
			}
		}
	}

	return nil
}
