// Package telemetry installs the OpenTelemetry tracer provider that the
// conversation engines report turn, generation and tool spans to.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/soyeahso/hotline/internal/config"
	"github.com/soyeahso/hotline/internal/logging"
	"github.com/soyeahso/hotline/internal/version"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const defaultServiceName = "hotline"

// ShutdownFunc flushes and stops the installed exporter.
type ShutdownFunc func(context.Context) error

// Option adjusts Init.
type Option func(*options)

type options struct {
	stdout io.Writer
}

// WithStdout directs the stdout exporter to w instead of os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// Init installs a global tracer provider. Spans go to the OTLP gRPC
// endpoint when one is configured and to stdout otherwise. When telemetry
// is disabled nothing is installed and the global no-op provider stays.
func Init(ctx context.Context, cfg config.TelemetryConfig, log *logging.Logger, opts ...Option) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log = log.Sub("telemetry")

	exp, err := newExporter(ctx, cfg, o, log)
	if err != nil {
		return nil, err
	}

	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", name),
			attribute.String("service.version", version.Version),
		),
		resource.WithFromEnv(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("telemetry shutdown failed")
			return err
		}
		return nil
	}, nil
}

func newExporter(ctx context.Context, cfg config.TelemetryConfig, o options, log *logging.Logger) (sdktrace.SpanExporter, error) {
	if cfg.Endpoint == "" {
		log.Debug().Msg("no OTLP endpoint configured, using stdout trace exporter")
		var stdOpts []stdouttrace.Option
		if o.stdout != nil {
			stdOpts = append(stdOpts, stdouttrace.WithWriter(o.stdout))
		}
		return stdouttrace.New(stdOpts...)
	}

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
	}
	log.Info().Str("endpoint", cfg.Endpoint).Msg("OTLP trace exporter configured")
	return exp, nil
}

// End finalizes a span and captures the provided error.
func End(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
