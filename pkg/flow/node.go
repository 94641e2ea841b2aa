// Package flow implements the flow object graph: contexts, flows, the node
// lifecycle state machine and the synchronous message dispatcher.
package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/microred/pkg/log"
	"github.com/dukex/microred/pkg/metrics"
	"github.com/dukex/microred/pkg/models"
)

// State is a node lifecycle state.
type State int

const (
	StateConstructed State = iota
	StateConfigured
	StateRunning
	StateStopped
)

var stateName = map[State]string{
	StateConstructed: "constructed",
	StateConfigured:   "configured",
	StateRunning:      "running",
	StateStopped:      "stopped",
}

func (s State) String() string {
	if name, ok := stateName[s]; ok {
		return name
	}

	return fmt.Sprintf("state(%d)", int(s))
}

// Node is a unit of behavior inside a flow. Implementations embed Base, which
// supplies identity, wiring, the dispatcher and no-op lifecycle hooks, and
// override the hooks they need.
type Node interface {
	ID() string
	Type() string
	Name() string
	Flow() *Flow
	Core() *Base

	// SetOutputs assigns the resolved fan-out once, before setup.
	SetOutputs(outputs [][]Node) error
	// SetLinks assigns resolved link targets.
	SetLinks(links []Node) error
	// Send delivers msg to every target of the single output port.
	Send(msg *models.Message) error

	// OnSetup parses the declarative item. Resources are acquired in OnStart.
	OnSetup(item models.Item) error
	// OnStart acquires timers, connections and subscriptions.
	OnStart(ctx context.Context) error
	// OnMessage handles one message. A non-nil result is forwarded with Send.
	OnMessage(msg *models.Message) (*models.Message, error)
	// OnStop releases everything OnStart acquired. It must be safe to call when
	// OnStart never ran or failed halfway.
	OnStop(ctx context.Context) error
}

// Options identify a node at construction time.
type Options struct {
	ID      string
	Type    string
	Name    string
	Flow    *Flow
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Base is the embeddable default implementation of Node.
type Base struct {
	id      string
	typ     string
	name    string
	flow    *Flow
	logger  *slog.Logger
	metrics *metrics.Metrics

	outputs    [][]Node
	outputsSet bool
	links      []Node
	state      State
}

// NewBase builds the embeddable part of a node.
func NewBase(opts Options) Base {
	return Base{
		id:      opts.ID,
		typ:     opts.Type,
		name:    opts.Name,
		flow:    opts.Flow,
		metrics: opts.Metrics,
		logger:  log.WithNode(opts.Logger, opts.ID, opts.Type),
	}
}

func (b *Base) ID() string   { return b.id }
func (b *Base) Type() string { return b.typ }
func (b *Base) Name() string { return b.name }
func (b *Base) Flow() *Flow  { return b.flow }
func (b *Base) Core() *Base  { return b }

// Label returns the display name, falling back to the id.
func (b *Base) Label() string {
	if b.name != "" {
		return b.name
	}

	return b.id
}

// State returns the current lifecycle state.
func (b *Base) State() State {
	return b.state
}

// Logger returns a logger tagged with the node identity.
func (b *Base) Logger() *slog.Logger {
	return b.logger
}

// Metrics returns the collectors shared by the graph, possibly nil.
func (b *Base) Metrics() *metrics.Metrics {
	return b.metrics
}

// SetOutputs stores a private copy of the fan-out lists. It can only be called
// once and only before setup.
func (b *Base) SetOutputs(outputs [][]Node) error {
	if b.outputsSet || b.state != StateConstructed {
		return fmt.Errorf("%w: %s", ErrOutputsFrozen, b.id)
	}

	frozen := make([][]Node, len(outputs))
	for i, port := range outputs {
		frozen[i] = append([]Node(nil), port...)
	}

	b.outputs = frozen
	b.outputsSet = true

	return nil
}

// OutputCount returns the number of output ports.
func (b *Base) OutputCount() int {
	return len(b.outputs)
}

// Targets returns a copy of the fan-out list of port.
func (b *Base) Targets(port int) []Node {
	if port < 0 || port >= len(b.outputs) {
		return nil
	}

	return append([]Node(nil), b.outputs[port]...)
}

// SetLinks stores resolved link targets. Link nodes override it.
func (b *Base) SetLinks(links []Node) error {
	b.links = append([]Node(nil), links...)

	return nil
}

// Links returns the resolved link targets.
func (b *Base) Links() []Node {
	return append([]Node(nil), b.links...)
}

// Send clones msg for every target of output port 0 and delivers each clone,
// depth first and in wiring order. The first failure aborts the remaining
// targets and is returned to the caller.
func (b *Base) Send(msg *models.Message) error {
	if msg == nil || len(b.outputs) == 0 {
		return nil
	}

	for _, target := range b.outputs[0] {
		if err := Receive(target, msg.Clone()); err != nil {
			return err
		}
	}

	return nil
}

// SendPorts addresses output ports by index. Only the single port case is supported.
func (b *Base) SendPorts(msgs []*models.Message) error {
	if len(msgs) > 1 {
		return fmt.Errorf("%w: node %s addressed %d ports", ErrMultipleOutputs, b.id, len(msgs))
	}

	if len(msgs) == 0 {
		return nil
	}

	return b.Send(msgs[0])
}

func (b *Base) OnSetup(models.Item) error {
	return nil
}

func (b *Base) OnStart(context.Context) error {
	return nil
}

func (b *Base) OnMessage(*models.Message) (*models.Message, error) {
	return nil, nil
}

func (b *Base) OnStop(context.Context) error {
	return nil
}

// Receive hands msg to n. If the node returns a message it is forwarded through
// n's outputs. Messages are refused unless the node is running.
func Receive(n Node, msg *models.Message) error {
	core := n.Core()
	if core.state != StateRunning {
		return deliveryError(n, fmt.Errorf("%w: %s", ErrNodeNotRunning, core.state))
	}

	core.metrics.Delivered(n.Type())

	out, err := n.OnMessage(msg)
	if err != nil {
		core.metrics.DeliveryFailed(n.Type())

		return deliveryError(n, err)
	}

	if out == nil {
		return nil
	}

	return n.Send(out)
}
