package registry

import (
	"github.com/dukex/microred/pkg/nodes/comment"
	"github.com/dukex/microred/pkg/nodes/debug"
	"github.com/dukex/microred/pkg/nodes/function"
	"github.com/dukex/microred/pkg/nodes/inject"
	"github.com/dukex/microred/pkg/nodes/link"
	"github.com/dukex/microred/pkg/nodes/mqtt"
	rangenode "github.com/dukex/microred/pkg/nodes/range"
)

// RegisterDefaultNodes registers all built-in node factories with the registry.
func (r *Registry) RegisterDefaultNodes() {
	// Flow annotation and inspection
	r.RegisterNode(comment.NewCommentNodeFactory())
	r.RegisterNode(debug.NewDebugNodeFactory())

	// Sources and transforms
	r.RegisterNode(inject.NewInjectNodeFactory())
	r.RegisterNode(function.NewFunctionNodeFactory())
	r.RegisterNode(rangenode.NewRangeNodeFactory())

	// Links
	r.RegisterNode(link.NewLinkInNodeFactory())
	r.RegisterNode(link.NewLinkOutNodeFactory())
	r.RegisterNode(link.NewLinkCallNodeFactory())

	// Publish/subscribe
	r.RegisterNode(mqtt.NewBrokerNodeFactory())
	r.RegisterNode(mqtt.NewInNodeFactory())
	r.RegisterNode(mqtt.NewOutNodeFactory())
}
