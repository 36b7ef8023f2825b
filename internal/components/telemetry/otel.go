package telemetry

import (
	"context"
	"errors"
	"time"

	"maimai-scraper/internal/components/configutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type OtlpConnConfig struct {
	GrpcEndpoint string            `json:"grpc_endpoint"`
	HttpEndpoint string            `json:"http_endpoint"`
	Headers      map[string]string `json:"headers"`
}

func (c OtlpConnConfig) enabled() bool {
	return c.GrpcEndpoint != "" || c.HttpEndpoint != ""
}

type OtlpConfig struct {
	Traces  OtlpConnConfig `json:"traces"`
	Metrics OtlpConnConfig `json:"metrics"`
}

type Config struct {
	Otlp OtlpConfig `json:"otlp"`
}

// Otel holds the installed providers, either one may be nil when its
// exporter was not configured.
type Otel struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

func (t Otel) Shutdown(ctx context.Context) error {
	errlist := []error{}
	if t.TracerProvider != nil {
		err := t.TracerProvider.Shutdown(ctx)
		if err != nil {
			errlist = append(errlist, err)
		}
	}
	if t.MeterProvider != nil {
		err := t.MeterProvider.Shutdown(ctx)
		if err != nil {
			errlist = append(errlist, err)
		}
	}
	return errors.Join(errlist...)
}

// SetupFromEnv searches up the filesystem from the cwd to find a file
// called telemetry.json5, once found it will then use it as a config to
// setup telemetry. A missing file is reported as os.ErrNotExist.
func SetupFromEnv(ctx context.Context, serviceName string) (Otel, error) {
	config, err := configutil.ReadRecursively[Config]("telemetry.json5")
	if err != nil {
		return Otel{}, err
	}
	return Setup(ctx, serviceName, config)
}

func Setup(ctx context.Context, serviceName string, config Config) (Otel, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*15)
	defer cancel()

	r, err := newResource(serviceName)
	if err != nil {
		return Otel{}, err
	}

	out := Otel{}
	if config.Otlp.Traces.enabled() {
		out.TracerProvider, err = newTraceProvider(ctx, r, config.Otlp.Traces)
		if err != nil {
			return Otel{}, err
		}
		otel.SetTracerProvider(out.TracerProvider)
	}
	if config.Otlp.Metrics.enabled() {
		out.MeterProvider, err = newMetricProvider(ctx, r, config.Otlp.Metrics)
		if err != nil {
			return Otel{}, errors.Join(err, out.Shutdown(ctx))
		}
		otel.SetMeterProvider(out.MeterProvider)
	}

	return out, nil
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
}

func newTraceProvider(ctx context.Context, r *resource.Resource, c OtlpConnConfig) (*trace.TracerProvider, error) {
	exporter, err := otlpTraceExporter(ctx, c)
	if err != nil {
		return nil, err
	}
	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(r),
	), nil
}

func otlpTraceExporter(ctx context.Context, c OtlpConnConfig) (trace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*3)
	defer cancel()

	if c.GrpcEndpoint != "" {
		return otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpointURL(c.GrpcEndpoint),
			otlptracegrpc.WithHeaders(c.Headers),
		)
	}
	return otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpointURL(c.HttpEndpoint),
		otlptracehttp.WithHeaders(c.Headers),
	)
}

func newMetricProvider(ctx context.Context, r *resource.Resource, c OtlpConnConfig) (*metric.MeterProvider, error) {
	exporter, err := otlpMetricExporter(ctx, c)
	if err != nil {
		return nil, err
	}
	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(time.Second*5))),
		metric.WithResource(r),
	), nil
}

func otlpMetricExporter(ctx context.Context, c OtlpConnConfig) (metric.Exporter, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*3)
	defer cancel()

	if c.GrpcEndpoint != "" {
		return otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithEndpointURL(c.GrpcEndpoint),
			otlpmetricgrpc.WithHeaders(c.Headers),
		)
	}
	return otlpmetrichttp.New(
		ctx,
		otlpmetrichttp.WithEndpointURL(c.HttpEndpoint),
		otlpmetrichttp.WithHeaders(c.Headers),
	)
}
