package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/microred/pkg/cmd"
	"github.com/dukex/microred/pkg/engine"
	"github.com/dukex/microred/pkg/eventloop"
	"github.com/dukex/microred/pkg/flowfile"
	"github.com/dukex/microred/pkg/log"
	"github.com/dukex/microred/pkg/metrics"
	"github.com/dukex/microred/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultAdminAddr = ":1880"
	shutdownTimeout  = 10 * time.Second
)

// RunConfig holds everything the run command reads from flags.
type RunConfig struct {
	FlowsFile   string
	AdminAddr   string
	PluginsPath string
	OTelEnabled bool
}

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Build the flows and run them until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "flows",
				Aliases:  []string{"f"},
				Usage:    "Flow file (JSON or YAML)",
				Required: true,
				Sources:  cli.EnvVars("FLOWS_FILE"),
			},
			&cli.StringFlag{
				Name:    "admin-addr",
				Usage:   "Address of the admin API, empty to disable it",
				Value:   defaultAdminAddr,
				Sources: cli.EnvVars("ADMIN_ADDR"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces with OTLP over HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return Run(ctx, RunConfig{
				FlowsFile:   command.String("flows"),
				AdminAddr:   command.String("admin-addr"),
				PluginsPath: command.String("plugins-path"),
				OTelEnabled: command.Bool("otel-enabled"),
			})
		},
	}
}

// Run builds the flows and blocks until ctx is done, then stops every node.
func Run(ctx context.Context, cfg RunConfig) error {
	logger := log.WithModule("runtime").With("run_id", uuid.NewString())

	items, err := flowfile.Load(cfg.FlowsFile)
	if err != nil {
		return err
	}

	reg := cmd.NewRegistry(logger, cfg.PluginsPath)

	dialers, closeDialers := cmd.NewDialers(logger)
	defer func() {
		if err := closeDialers(); err != nil {
			logger.ErrorContext(ctx, "Failed to close in-memory transport", "error", err)
		}
	}()

	tracer, shutdownTracer := cmd.NewTracer(ctx, logger, cfg.OTelEnabled)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown tracer provider", "error", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m, err := metrics.New(promRegistry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	loop := eventloop.New(eventloop.WithLogger(logger))

	graph, err := engine.Build(ctx, items, engine.Options{
		Registry: reg,
		Loop:     loop,
		Logger:   logger,
		Dialers:  dialers,
		Metrics:  m,
		Tracer:   tracer,
	})
	if err != nil {
		return err
	}

	loopDone := make(chan error, 1)

	go func() {
		loopDone <- loop.Run(context.WithoutCancel(ctx))
	}()

	if cfg.AdminAddr != "" {
		app := web.NewApp(web.NewAPIHandlers(graph, reg), promRegistry, logger)

		go func() {
			logger.InfoContext(ctx, "Admin API listening", "addr", cfg.AdminAddr)

			if err := app.Listen(cfg.AdminAddr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
				logger.ErrorContext(ctx, "Admin API stopped", "error", err)
			}
		}()

		defer func() {
			if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
				logger.Error("Failed to shutdown admin API", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	return shutdown(graph, loop, loopDone, logger)
}

func shutdown(graph *engine.Graph, loop *eventloop.Loop, loopDone <-chan error, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var stopErr error

	callErr := loop.Call(ctx, func() {
		stopErr = graph.Stop(ctx)
	})

	loop.Close()

	if err := <-loopDone; err != nil && !errors.Is(err, eventloop.ErrClosed) {
		logger.Error("Event loop stopped", "error", err)
	}

	return errors.Join(callErr, stopErr)
}
