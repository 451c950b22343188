// Package trace wires an OpenTelemetry tracer for the procedure runtime.
//
// The engine has no network transport surface, so only the stdout exporter
// is supported; there is nothing to point an OTLP collector endpoint at.
package trace

import (
	"context"
	"os"
	"time"

	"github.com/ranstack/rrcue/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config governs whether and how procedure spans are emitted.
type Config struct {
	Enabled     bool
	ServiceName string
}

// Shutdown flushes and releases tracer resources.
type Shutdown func(context.Context) error

// Init wires a tracer provider with a stdout exporter, or a no-op provider
// when tracing is disabled. It returns a Tracer for span creation and a
// Shutdown to flush on engine stop.
func Init(ctx context.Context, cfg Config, log logging.Logger) (trace.Tracer, Shutdown, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		tp := trace.NewNoopTracerProvider()
		return tp.Tracer("rrcue"), func(context.Context) error { return nil }, nil
	}

	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stdout),
		stdouttrace.WithPrettyPrint(),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.Info(ctx, "procedure tracing enabled", logging.String("service_name", cfg.ServiceName))
	return tp.Tracer("rrcue"), tp.Shutdown, nil
}

// ShutdownWithTimeout invokes shutdown with a bounded timeout, logging but
// swallowing errors.
func ShutdownWithTimeout(ctx context.Context, shutdown Shutdown, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracer shutdown failed", logging.String("error", err.Error()))
	}
}
