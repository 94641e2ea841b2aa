// Package comment provides the inert comment node.
package comment

import "github.com/dukex/microred/pkg/flow"

// Node documents a flow. It has no outputs and ignores messages.
type Node struct {
	flow.Base
}

func NewNode(opts flow.Options) *Node {
	return &Node{Base: flow.NewBase(opts)}
}
