package comment

import (
	"context"
	"testing"

	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/models"
	"github.com/dukex/microred/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentNode(t *testing.T) {
	node, err := NewCommentNodeFactory().Create(context.Background(), flow.Options{ID: "c1", Type: TypeName}, protocol.Dependencies{})
	require.NoError(t, err)

	require.NoError(t, flow.Setup(node, models.Item{ID: "c1", Type: TypeName}))
	require.NoError(t, flow.Start(context.Background(), node))

	out, err := node.OnMessage(models.NewPayloadMessage("ignored"))
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 0, node.Core().OutputCount())
}
