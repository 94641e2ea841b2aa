// Package protocol defines the contracts between the graph builder and the
// pluggable node types.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/microred/pkg/channels"
	"github.com/dukex/microred/pkg/eventloop"
	"github.com/dukex/microred/pkg/evaluator"
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/metrics"
	"go.opentelemetry.io/otel/trace"
)

// NodeFactory creates node instances and provides metadata about the node type.
type NodeFactory interface {
	// Create constructs a node in the Constructed state. Configuration is
	// applied later through OnSetup.
	Create(ctx context.Context, opts flow.Options, deps Dependencies) (flow.Node, error)

	// ID returns the type name used by flow items
	ID() string

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any
}

// Dependencies are the runtime services shared by every node of a graph.
type Dependencies struct {
	Logger     *slog.Logger
	Loop       *eventloop.Loop
	Flows      *flow.Set
	Evaluators evaluator.Set
	Dialers    channels.Dialers
	Metrics    *metrics.Metrics
	Tracer     trace.Tracer
}
