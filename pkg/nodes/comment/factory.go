package comment

import (
	"context"

	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/protocol"
)

const TypeName = "comment"

type CommentNodeFactory struct{}

func (f *CommentNodeFactory) Create(_ context.Context, opts flow.Options, _ protocol.Dependencies) (flow.Node, error) {
	return NewNode(opts), nil
}

func (f *CommentNodeFactory) ID() string {
	return TypeName
}

func (f *CommentNodeFactory) Name() string {
	return "Comment"
}

func (f *CommentNodeFactory) Description() string {
	return "Annotates a flow; never receives or sends messages"
}

func (f *CommentNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"info": map[string]any{"type": "string"},
		},
	}
}

func NewCommentNodeFactory() protocol.NodeFactory {
	return &CommentNodeFactory{}
}
