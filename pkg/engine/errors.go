package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingFlow is returned when an item names a parent flow that does not exist.
	ErrMissingFlow = errors.New("owning flow not found")

	// ErrUnresolvedWire is returned when a wire points at a node missing from the flow.
	ErrUnresolvedWire = errors.New("wire target not found in flow")

	// ErrUnresolvedLink is returned when a link target is not found in any flow.
	ErrUnresolvedLink = errors.New("link target not found")
)

// Pass identifies a build pass.
type Pass int

const (
	PassFlows Pass = iota + 1
	PassNodes
	PassWires
	PassLinks
	PassSetup
	PassStart
)

var passName = map[Pass]string{
	PassFlows: "flows",
	PassNodes: "nodes",
	PassWires: "wires",
	PassLinks: "links",
	PassSetup: "setup",
	PassStart: "start",
}

func (p Pass) String() string {
	if name, ok := passName[p]; ok {
		return name
	}

	return fmt.Sprintf("pass(%d)", int(p))
}

// BuildError is a build-time configuration error tied to the item that caused it.
type BuildError struct {
	Pass   Pass
	ItemID string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: item %s: %v", e.Pass, e.ItemID, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

func buildError(pass Pass, itemID string, err error) error {
	return &BuildError{Pass: pass, ItemID: itemID, Err: err}
}
