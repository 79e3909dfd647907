package observability

import (
	"context"
	"fmt"

	"github.com/railzwaylabs/subsync/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewTracerProvider installs the global tracer provider. When telemetry is
// disabled a no-op provider is returned so callers can always start spans.
func NewTracerProvider(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (trace.TracerProvider, error) {
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint == "" {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, nil
	}

	ctx := context.Background()
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Telemetry.Endpoint),
	}
	if cfg.Telemetry.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.Telemetry.ServiceName),
		semconv.ServiceVersionKey.String(cfg.App.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if rate := cfg.Telemetry.SamplingRate; rate > 0 && rate < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := tp.Shutdown(ctx); err != nil {
				log.Warn("tracer provider shutdown failed", zap.Error(err))
			}
			return nil
		},
	})

	log.Info("tracing enabled", zap.String("endpoint", cfg.Telemetry.Endpoint))
	return tp, nil
}
