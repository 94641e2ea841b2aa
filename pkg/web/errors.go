package web

import (
	"errors"

	"github.com/dukex/microred/pkg/flow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// respond renders an RFC 7807 problem for the current request path.
func respond(c fiber.Ctx, status int, problemType, detail string) error {
	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(problem)
}

func badRequest(c fiber.Ctx, detail string) error {
	return respond(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return respond(c, fiber.StatusNotFound, "not_found", detail)
}

func conflict(c fiber.Ctx, detail string) error {
	return respond(c, fiber.StatusConflict, "conflict", detail)
}

// unavailable is returned when the event loop did not run the request in time.
func unavailable(c fiber.Ctx, err error) error {
	return respond(c, fiber.StatusServiceUnavailable, "loop_unavailable", err.Error())
}

// deliveryFailed reports a message that a node downstream refused.
func deliveryFailed(c fiber.Ctx, err error) error {
	problemType := "delivery_error"
	if errors.Is(err, flow.ErrNodeNotRunning) {
		problemType = "node_not_running"
	}

	return respond(c, fiber.StatusUnprocessableEntity, problemType, err.Error())
}
