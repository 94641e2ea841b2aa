package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/microred/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "microred"

// NewTracer returns an OTLP exporting tracer when enabled and a no-op tracer
// otherwise. Exporter endpoints come from the standard OTEL_EXPORTER_OTLP_*
// environment variables.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, logger *slog.Logger, enabled bool) (trace.Tracer, otelhelper.Shutdown) {
	noop := func(context.Context) error { return nil }

	if !enabled {
		return otelhelper.OrNoop(nil), noop
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		logger.WarnContext(ctx, "Tracing disabled", "error", err)

		return otelhelper.OrNoop(nil), noop
	}

	return tracer, shutdown
}
