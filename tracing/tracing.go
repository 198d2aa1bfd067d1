// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package tracing exports OpenTelemetry spans over OTLP/HTTP.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ava-labs/wasmrunner/version"
)

const exportTimeout = 10 * time.Second

type Config struct {
	// Endpoint is the host:port of the OTLP/HTTP collector. Tracing is
	// disabled when empty.
	Endpoint string
	Insecure bool
	// SampleRate is the fraction of traces that are exported.
	SampleRate float64
}

func (c Config) Enabled() bool { return c.Endpoint != "" }

// ShutdownFunc flushes pending spans and stops the exporter.
type ShutdownFunc func(ctx context.Context) error

// Setup installs a global tracer provider exporting to [config.Endpoint].
// When tracing is disabled the global no-op provider is left in place.
func Setup(ctx context.Context, config Config) (ShutdownFunc, error) {
	if !config.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.Endpoint),
		otlptracehttp.WithTimeout(exportTimeout),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	tp := newProvider(exporter, config.SampleRate)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newProvider(exporter sdktrace.SpanExporter, sampleRate float64) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithExportTimeout(exportTimeout)),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", version.Name),
			attribute.Stringer("service.version", version.Current),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)
}
