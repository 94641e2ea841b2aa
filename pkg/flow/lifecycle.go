package flow

import (
	"context"
	"fmt"

	"github.com/dukex/microred/pkg/models"
)

// Setup moves n from Constructed to Configured.
func Setup(n Node, item models.Item) error {
	core := n.Core()
	if core.state != StateConstructed {
		return fmt.Errorf("%w: setup %s from %s", ErrInvalidTransition, n.ID(), core.state)
	}

	if err := n.OnSetup(item); err != nil {
		return err
	}

	core.state = StateConfigured

	return nil
}

// Start moves n from Configured to Running.
func Start(ctx context.Context, n Node) error {
	core := n.Core()
	if core.state != StateConfigured {
		return fmt.Errorf("%w: start %s from %s", ErrInvalidTransition, n.ID(), core.state)
	}

	if err := n.OnStart(ctx); err != nil {
		return err
	}

	core.state = StateRunning

	return nil
}

// Stop moves n to the terminal Stopped state. OnStop runs for every node that
// completed setup, whether or not it was started. Stopping twice is a no-op.
func Stop(ctx context.Context, n Node) error {
	core := n.Core()

	switch core.state {
	case StateStopped:
		return nil
	case StateConstructed:
		core.state = StateStopped

		return nil
	}

	core.state = StateStopped

	if err := n.OnStop(ctx); err != nil {
		return fmt.Errorf("stop %s: %w", n.ID(), err)
	}

	return nil
}
