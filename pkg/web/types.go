package web

import (
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/protocol"
)

// FlowSummary is one entry of the flow list.
type FlowSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Nodes int    `json:"nodes"`
}

// FlowResponse describes a flow and the live state of its nodes.
type FlowResponse struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Nodes []NodeResponse `json:"nodes"`
}

// NodeResponse represents one node of a running graph.
type NodeResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	State   string `json:"state"`
	Outputs int    `json:"outputs"`
}

// NodeTypeResponse describes a registered node type.
type NodeTypeResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// DebugResponse holds the sidebar entries recorded by a debug node.
type DebugResponse struct {
	ID       string   `json:"id"`
	Messages []string `json:"messages"`
}

// InjectRequest optionally overrides the payload of an injected message.
type InjectRequest struct {
	Payload any `json:"payload"`
}

func transformFlow(f *flow.Flow) FlowResponse {
	nodes := f.Nodes()

	response := FlowResponse{
		ID:    f.ID(),
		Name:  f.Name(),
		Nodes: make([]NodeResponse, 0, len(nodes)),
	}

	for _, n := range nodes {
		response.Nodes = append(response.Nodes, transformNode(n))
	}

	return response
}

func transformNode(n flow.Node) NodeResponse {
	core := n.Core()

	return NodeResponse{
		ID:      n.ID(),
		Type:    n.Type(),
		Name:    n.Name(),
		State:   core.State().String(),
		Outputs: core.OutputCount(),
	}
}

func transformNodeType(factory protocol.NodeFactory) NodeTypeResponse {
	return NodeTypeResponse{
		ID:          factory.ID(),
		Name:        factory.Name(),
		Description: factory.Description(),
		Schema:      factory.Schema(),
	}
}
