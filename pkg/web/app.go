package web

import (
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewApp routes the admin API. gatherer may be nil, in which case /metrics is
// not served.
func NewApp(handlers *APIHandlers, gatherer prometheus.Gatherer, log *slog.Logger) *fiber.App {
	app := fiber.New()
	app.Use(logger.New(logger.Config{
		DisableColors: true,
		Next: func(c fiber.Ctx) bool {
			return log == nil || !log.Enabled(c.Context(), slog.LevelDebug)
		},
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/health", handlers.HealthCheck)

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("microred admin API")
	})

	f := app.Group("/flows")
	f.Get("/", handlers.GetFlows)
	f.Get("/:id", handlers.GetFlow)

	app.Get("/nodes", handlers.GetNodeTypes)
	app.Get("/debug/:id", handlers.GetDebug)
	app.Post("/inject/:id", handlers.Inject)

	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		})))
	}

	return app
}
