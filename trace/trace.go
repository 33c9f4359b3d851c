package trace

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "klinechart"

var (
	tracerProvider *sdktrace.TracerProvider
	spanFile       *os.File
)

// Config controls span export. Spans go to File, or stdout when File is empty.
type Config struct {
	Enabled bool
	File    string
}

// Init installs a global tracer provider. When tracing is disabled the
// global no-op provider stays in place and StartSpan costs nothing.
func Init(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}

	var w io.Writer = os.Stdout
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("trace: open %s: %w", cfg.File, err)
		}
		w, spanFile = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		closeSpanFile()
		return err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		closeSpanFile()
		return err
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	return nil
}

// Shutdown flushes pending spans and closes the span file.
func Shutdown(ctx context.Context) error {
	var err error
	if tracerProvider != nil {
		err = tracerProvider.Shutdown(ctx)
		tracerProvider = nil
	}
	if cerr := closeSpanFile(); err == nil {
		err = cerr
	}
	return err
}

func closeSpanFile() error {
	if spanFile == nil {
		return nil
	}
	err := spanFile.Close()
	spanFile = nil
	return err
}

func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(serviceName).Start(ctx, spanName, opts...)
}
