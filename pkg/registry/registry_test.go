package registry

import (
	"context"
	"testing"

	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/nodes/comment"
	"github.com/dukex/microred/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterDefaultNodes(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterDefaultNodes()

	var ids []string
	for _, factory := range r.GetAvailableNodes() {
		ids = append(ids, factory.ID())
	}

	assert.Equal(t, []string{
		"comment",
		"debug",
		"function",
		"inject",
		"link call",
		"link in",
		"link out",
		"mqtt in",
		"mqtt out",
		"mqtt-broker",
		"range",
	}, ids)
}

func TestRegistry_CreateNode(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterNode(comment.NewCommentNodeFactory())

	node, err := r.CreateNode(context.Background(), flow.Options{ID: "c1", Type: "comment"}, protocol.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "c1", node.ID())
	assert.Equal(t, flow.StateConstructed, node.Core().State())

	_, err = r.CreateNode(context.Background(), flow.Options{ID: "x", Type: "ui_chart"}, protocol.Dependencies{})
	assert.ErrorIs(t, err, ErrUnknownNodeType)
}

func TestRegistry_Factory(t *testing.T) {
	r := NewRegistry(nil)

	_, ok := r.Factory("comment")
	assert.False(t, ok)

	r.RegisterNode(comment.NewCommentNodeFactory())
	r.RegisterNode(comment.NewCommentNodeFactory())

	factory, ok := r.Factory("comment")
	require.True(t, ok)
	assert.Equal(t, "Comment", factory.Name())
	assert.Len(t, r.GetAvailableNodes(), 1)
}

func TestRegistry_LoadNodePlugins_EmptyDir(t *testing.T) {
	r := NewRegistry(nil)

	factories, err := r.LoadNodePlugins(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, factories)
}
