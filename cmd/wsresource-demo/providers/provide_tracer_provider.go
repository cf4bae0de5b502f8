package providers

import (
	"context"
	"strings"

	"github.com/gbdevw/gowsresource/cmd/wsresource-demo/configuration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

func ProvideTracerProvider(ctx context.Context, lc fx.Lifecycle, config configuration.Configuration) (trace.TracerProvider, error) {
	if strings.ToLower(config.TracingEnabled) != "true" && config.TracingEnabled != "1" {
		// Global tracer provider will be used: it returns no-op tracers
		return otel.GetTracerProvider(), nil
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
	if config.TracingEndpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(config.TracingEndpoint))
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("wsresource.demo"),
		)),
	)
	otel.SetTracerProvider(tp)
	// Flush spans on exit
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp, nil
}
