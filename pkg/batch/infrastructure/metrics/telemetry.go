package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const (
	protocolGRPC = "grpc"
	protocolHTTP = "http"
)

func serviceResource(serviceName string) *resource.Resource {
	return resource.NewSchemaless(attribute.String("service.name", serviceName))
}

// NewTracerProvider creates a tracer provider batching spans to the OTLP endpoint in cfg.
func NewTracerProvider(ctx context.Context, cfg config.TelemetryConfig) (*sdktrace.TracerProvider, error) {
	tc := cfg.Tracing
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch tc.Protocol {
	case protocolGRPC, "":
		opts := []otlptracegrpc.Option{}
		if tc.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(tc.Endpoint))
		}
		if tc.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case protocolHTTP:
		opts := []otlptracehttp.Option{}
		if tc.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(tc.Endpoint))
		}
		if tc.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("telemetry.tracing.protocol '%s' is not one of grpc, http", tc.Protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	logger.Infof("Tracing: exporting spans over OTLP/%s to %s.", tc.Protocol, tc.Endpoint)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(serviceResource(cfg.ServiceName)),
	), nil
}

// NewMeterProvider creates a meter provider pushing metrics periodically to the OTLP endpoint in cfg.
func NewMeterProvider(ctx context.Context, cfg config.TelemetryConfig) (*sdkmetric.MeterProvider, error) {
	mc := cfg.Metrics
	var (
		exporter sdkmetric.Exporter
		err      error
	)
	switch mc.OTLPProtocol {
	case protocolGRPC, "":
		opts := []otlpmetricgrpc.Option{}
		if mc.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(mc.OTLPEndpoint))
		}
		if mc.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	case protocolHTTP:
		opts := []otlpmetrichttp.Option{}
		if mc.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(mc.OTLPEndpoint))
		}
		if mc.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("telemetry.metrics.otlp_protocol '%s' is not one of grpc, http", mc.OTLPProtocol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}
	logger.Infof("Metrics: exporting over OTLP/%s to %s.", mc.OTLPProtocol, mc.OTLPEndpoint)
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(serviceResource(cfg.ServiceName)),
	), nil
}
