// Package tracing configures OpenTelemetry trace export and offers small
// helpers for starting spans around store, cache and broker calls.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/Adithya-Monish-Kumar-K/item-enrichment-service"

// Provider owns the process tracer provider.
type Provider struct {
	shutdown func(context.Context) error
	tracer   trace.Tracer
}

// Init installs the global tracer provider and W3C propagator. With tracing
// disabled it installs a no-op provider so span calls stay cheap.
func Init(ctx context.Context, svc config.ServiceConfig, cfg config.TracingConfig) (*Provider, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return &Provider{
			shutdown: func(context.Context) error { return nil },
			tracer:   tp.Tracer(instrumentationName),
		}, nil
	}
	if cfg.Protocol != "" && cfg.Protocol != "grpc" {
		return nil, fmt.Errorf("unsupported otlp protocol %q", cfg.Protocol)
	}

	endpoint, insecure, err := collectorAddr(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("creating otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithFromEnv(),
		resource.WithAttributes(
			semconv.ServiceName(svc.Name),
			semconv.DeploymentEnvironment(svc.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	slog.Info("tracing enabled", "endpoint", cfg.Endpoint, "sample_rate", cfg.SampleRate)

	return &Provider{
		shutdown: tp.Shutdown,
		tracer:   tp.Tracer(instrumentationName),
	}, nil
}

// collectorAddr accepts either a bare host:port or a URL such as
// http://otel-collector:4317 and returns the host:port the gRPC exporter
// dials. Only an https URL turns transport security on.
func collectorAddr(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", false, fmt.Errorf("invalid otlp endpoint %q", endpoint)
	}
	switch u.Scheme {
	case "http", "grpc":
		return u.Host, true, nil
	case "https":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("unsupported otlp endpoint scheme %q", u.Scheme)
	}
}

// Tracer returns the service tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Shutdown flushes buffered spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}

// Start begins a span on the globally installed provider, so packages need no
// handle of their own.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
