// Package function provides the function node, which runs user code against
// every message with access to node, flow and global context.
package function

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/microred/pkg/config"
	"github.com/dukex/microred/pkg/evaluator"
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/models"
)

var ErrInvalidResult = errors.New("function must return a message object or nothing")

type Config struct {
	Func       string `mapstructure:"func"`
	Initialize string `mapstructure:"initialize"`
	Finalize   string `mapstructure:"finalize"`
	Language   string `mapstructure:"language"`
	Libs       []any  `mapstructure:"libs"`
}

type Node struct {
	flow.Base

	evaluators evaluator.Set
	context    *flow.Context

	fn       evaluator.Func
	finalize evaluator.Func
}

func NewNode(opts flow.Options, evaluators evaluator.Set) *Node {
	if evaluators == nil {
		evaluators = evaluator.Defaults()
	}

	return &Node{
		Base:       flow.NewBase(opts),
		evaluators: evaluators,
		context:    flow.NewContext(),
	}
}

// Context returns the node-private context.
func (n *Node) Context() *flow.Context {
	return n.context
}

func (n *Node) bindings() evaluator.Bindings {
	bindings := evaluator.Bindings{
		Node: map[string]any{
			"id":   n.ID(),
			"name": n.Name(),
			"type": n.Type(),
		},
		Context: n.context,
	}

	if f := n.Flow(); f != nil {
		bindings.Flow = f.Context()
		bindings.Global = f.Global()
	}

	return bindings
}

func (n *Node) OnSetup(item models.Item) error {
	var cfg Config
	if err := config.Decode(item.Config, &cfg); err != nil {
		return err
	}

	if len(cfg.Libs) > 0 {
		return config.Unimplemented("libs")
	}

	e, err := n.evaluators.Get(cfg.Language)
	if err != nil {
		return err
	}

	bindings := n.bindings()

	if n.fn, err = e.Compile(cfg.Func, bindings); err != nil {
		return fmt.Errorf("func: %w", err)
	}

	initialize, err := e.Compile(cfg.Initialize, bindings)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if n.finalize, err = e.Compile(cfg.Finalize, bindings); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}

	if initialize != nil {
		if _, err := initialize(context.Background(), nil); err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
	}

	return nil
}

// OnMessage runs the function. Returning nothing stops the message; returning a
// map sends it as the new message, keeping any pending link call. Lists address
// several outputs and are rejected.
func (n *Node) OnMessage(msg *models.Message) (*models.Message, error) {
	if n.fn == nil {
		return nil, nil
	}

	result, err := n.fn(context.Background(), msg.Fields())
	if err != nil {
		return nil, err
	}

	return n.toMessage(msg, result)
}

func (n *Node) toMessage(msg *models.Message, result any) (*models.Message, error) {
	switch value := result.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return msg.WithFields(value), nil
	case []any:
		return nil, fmt.Errorf("%w: function %s returned a list of %d", flow.ErrMultipleOutputs, n.ID(), len(value))
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidResult, result)
	}
}

func (n *Node) OnStop(context.Context) error {
	if n.finalize == nil {
		return nil
	}

	_, err := n.finalize(context.Background(), nil)

	return err
}
