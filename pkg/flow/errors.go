package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrMultipleOutputs is returned when a node addresses more than one output port at once.
	ErrMultipleOutputs = errors.New("only single output implemented")

	// ErrNodeNotRunning is returned when a message reaches a node that has not been started
	// or has already been stopped.
	ErrNodeNotRunning = errors.New("node not running")

	// ErrOutputsFrozen is returned when outputs are assigned to a node more than once
	// or after setup.
	ErrOutputsFrozen = errors.New("node outputs are frozen")

	// ErrInvalidTransition is returned for lifecycle moves the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrDuplicateNode is returned when a node id is registered twice in a flow.
	ErrDuplicateNode = errors.New("duplicate node id")

	// ErrDuplicateFlow is returned when a flow id is registered twice.
	ErrDuplicateFlow = errors.New("duplicate flow id")
)

// DeliveryError reports the node whose message handling failed. It is created once, at the
// node where the failure happened, and travels unchanged up the fan-out chain.
type DeliveryError struct {
	NodeID   string
	NodeType string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.NodeType, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func deliveryError(n Node, err error) error {
	var de *DeliveryError
	if errors.As(err, &de) {
		return err
	}

	return &DeliveryError{NodeID: n.ID(), NodeType: n.Type(), Err: err}
}
