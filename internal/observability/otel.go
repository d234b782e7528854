package observability

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

type OtelConfig struct {
	ServiceName string
	Environment string
	Version     string
}

// otlpSettings is the exporter side of the OTEL_* environment.
type otlpSettings struct {
	endpoint string
	headers  map[string]string
	insecure bool
	ratio    float64
}

var (
	otelOnce     sync.Once
	otelShutdown func(context.Context) error
)

// TracingEnabled reports whether OTEL_ENABLED turned the tracer on. The HTTP
// layer uses it to decide whether to mount the otelgin middleware.
func TracingEnabled() bool {
	return envBool("OTEL_ENABLED")
}

// InitOTel installs the global tracer provider and propagators. Exporter or
// resource trouble degrades to a warning; tracing is never a reason to keep
// the process from serving. The returned func flushes and stops the provider,
// and is nil when tracing is off.
func InitOTel(ctx context.Context, log *logger.Logger, cfg OtelConfig) func(context.Context) error {
	otelOnce.Do(func() {
		if !TracingEnabled() {
			return
		}
		serviceName := strings.TrimSpace(cfg.ServiceName)
		if serviceName == "" {
			serviceName = "pawsense-backend"
		}
		res, err := resource.New(
			ctx,
			resource.WithAttributes(
				semconv.ServiceNameKey.String(serviceName),
				attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
				semconv.ServiceVersionKey.String(strings.TrimSpace(cfg.Version)),
				attribute.String("service.component", serviceName),
			),
		)
		if err != nil && log != nil {
			log.Warn("otel resource init failed (continuing)", "error", err)
		}

		settings := loadOtlpSettings()
		sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(settings.ratio))

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(sampler),
			sdktrace.WithResource(res),
		}
		exporter, expErr := settings.buildExporter(ctx, log)
		if expErr != nil {
			if log != nil {
				log.Warn("otel exporter init failed (continuing)", "error", expErr)
			}
		} else {
			opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
		}
		tp := sdktrace.NewTracerProvider(opts...)

		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		otelShutdown = tp.Shutdown
		if log != nil {
			log.Info("otel tracing initialized", "service", serviceName, "endpoint", settings.endpoint)
		}
	})
	return otelShutdown
}

func loadOtlpSettings() otlpSettings {
	s := otlpSettings{
		endpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT"),
		insecure: envBool("OTEL_EXPORTER_OTLP_INSECURE"),
		ratio:    clamp01(envFloat("OTEL_SAMPLER_RATIO", 0.1)),
	}
	if raw := envStr("OTEL_EXPORTER_OTLP_HEADERS"); raw != "" {
		headers := map[string]string{}
		for _, pair := range strings.Split(raw, ",") {
			key, val, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			val = strings.TrimSpace(val)
			if key == "" || val == "" {
				continue
			}
			headers[key] = val
		}
		if len(headers) > 0 {
			s.headers = headers
		}
	}
	return s
}

// buildExporter ships spans to the configured OTLP/HTTP collector, or pretty
// prints them to stdout when no endpoint is set so local runs still show
// traces.
func (s otlpSettings) buildExporter(ctx context.Context, log *logger.Logger) (sdktrace.SpanExporter, error) {
	if s.endpoint == "" {
		if log != nil {
			log.Warn("otel using stdout exporter (no OTLP endpoint configured)")
		}
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(s.endpoint)}
	if s.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(s.headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(s.headers))
	}
	return otlptracehttp.New(ctx, opts...)
}
