// Package link provides the link in, link out and link call nodes. Link nodes
// connect parts of the graph by id instead of by wire, possibly across flows.
//
// A link call tags the message with a return address before sending it into
// its link in target. A link out in return mode reads that address back off the
// message and hands the reply to the call node, which forwards it on its own
// outputs. No request table is kept; the correlation travels with the message.
package link

import (
	"errors"

	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/models"
)

const (
	TypeIn   = "link in"
	TypeOut  = "link out"
	TypeCall = "link call"
)

var (
	// ErrLostLinkSource is returned when a return mode link out receives a
	// message that did not travel through a link call.
	ErrLostLinkSource = errors.New("lost link source")

	// ErrNoLinkTarget is returned when a link call has no resolved target.
	ErrNoLinkTarget = errors.New("link call has no target")
)

// InNode is an addressable entry point. Messages sent by link out and link call
// nodes leave through its outputs; it never processes anything itself.
type InNode struct {
	flow.Base
}

func NewInNode(opts flow.Options) *InNode {
	return &InNode{Base: flow.NewBase(opts)}
}

// returnAddress is the link source a call attaches to a message. It remembers
// the address the message already carried so calls can nest.
type returnAddress struct {
	call     *CallNode
	previous models.Responder
}

func (r *returnAddress) ID() string {
	return r.call.ID()
}

func (r *returnAddress) Respond(msg *models.Message) error {
	msg.LinkSource = r.previous

	return r.call.Respond(msg)
}
