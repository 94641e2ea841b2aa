// Package web provides the admin HTTP API of a running flow graph.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/dukex/microred/pkg/engine"
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/models"
	"github.com/dukex/microred/pkg/nodes/debug"
	"github.com/dukex/microred/pkg/nodes/inject"
	"github.com/dukex/microred/pkg/registry"
	"github.com/gofiber/fiber/v3"
)

// DefaultCallTimeout bounds how long a request waits for the event loop.
const DefaultCallTimeout = 5 * time.Second

type APIHandlers struct {
	graph       *engine.Graph
	registry    *registry.Registry
	callTimeout time.Duration
}

func NewAPIHandlers(graph *engine.Graph, registry *registry.Registry) *APIHandlers {
	return &APIHandlers{
		graph:       graph,
		registry:    registry,
		callTimeout: DefaultCallTimeout,
	}
}

// onLoop runs fn on the graph's event loop. Node state is never read from the
// request goroutine.
func (h *APIHandlers) onLoop(ctx context.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()

	return h.graph.Loop().Call(ctx, fn)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	var running, total int

	err := h.onLoop(c.Context(), func() {
		running = h.graph.Running()
		total = len(h.graph.Nodes())
	})

	status := "healthy"
	httpStatus := http.StatusOK

	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":        status,
		"nodes":         total,
		"nodes_running": running,
		"timestamp":     time.Now().UTC(),
	})
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	var flows []FlowSummary

	err := h.onLoop(c.Context(), func() {
		for _, f := range h.graph.Flows().Flows() {
			flows = append(flows, FlowSummary{ID: f.ID(), Name: f.Name(), Nodes: f.Len()})
		}
	})
	if err != nil {
		return unavailable(c, err)
	}

	return c.JSON(fiber.Map{
		"flows":       flows,
		"total_count": len(flows),
	})
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	var (
		response FlowResponse
		found    bool
	)

	err := h.onLoop(c.Context(), func() {
		var f *flow.Flow

		f, found = h.graph.Flows().Get(id)
		if found {
			response = transformFlow(f)
		}
	})
	if err != nil {
		return unavailable(c, err)
	}

	if !found {
		return notFound(c, "Flow not found")
	}

	return c.JSON(response)
}

func (h *APIHandlers) GetDebug(c fiber.Ctx) error {
	id := c.Params("id")

	var (
		node  flow.Node
		found bool
	)

	err := h.onLoop(c.Context(), func() {
		node, found = h.graph.Node(id)
	})
	if err != nil {
		return unavailable(c, err)
	}

	if !found {
		return notFound(c, "Node not found")
	}

	debugNode, ok := node.(*debug.Node)
	if !ok {
		return badRequest(c, "Node "+id+" is a "+node.Type()+" node, not a debug node")
	}

	return c.JSON(DebugResponse{ID: id, Messages: debugNode.Sidebar()})
}

// Inject fires an inject node as its button in the editor would. The request
// body may override message fields, e.g. {"payload": 42}.
func (h *APIHandlers) Inject(c fiber.Ctx) error {
	id := c.Params("id")

	var overrides map[string]any

	if len(c.Body()) > 0 {
		var req InjectRequest
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if req.Payload != nil {
			overrides = map[string]any{models.FieldPayload: req.Payload}
		}
	}

	var (
		node      flow.Node
		found     bool
		notInject bool
		stopped   bool
		sendErr   error
	)

	err := h.onLoop(c.Context(), func() {
		node, found = h.graph.Node(id)
		if !found {
			return
		}

		injectNode, ok := node.(*inject.Node)
		if !ok {
			notInject = true

			return
		}

		if injectNode.State() != flow.StateRunning {
			stopped = true

			return
		}

		sendErr = injectNode.TriggerWith(overrides)
	})

	switch {
	case err != nil:
		return unavailable(c, err)
	case !found:
		return notFound(c, "Node not found")
	case notInject:
		return badRequest(c, "Node "+id+" is a "+node.Type()+" node, not an inject node")
	case stopped:
		return conflict(c, "Node "+id+" is not running")
	case sendErr != nil:
		return deliveryFailed(c, sendErr)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	factories := h.registry.GetAvailableNodes()

	types := make([]NodeTypeResponse, 0, len(factories))
	for _, factory := range factories {
		types = append(types, transformNodeType(factory))
	}

	return c.JSON(fiber.Map{
		"node_types":  types,
		"total_count": len(types),
	})
}
