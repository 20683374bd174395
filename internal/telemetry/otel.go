// Package telemetry wires OpenTelemetry tracing around the gateway's
// inspection pipeline (authN, rate-limit, detectors, policy, usage) and
// the outbound LLM-proxy path, following this codebase's existing
// Provider/exporter-selection shape almost unchanged — only the span
// names, attribute keys, and session-specific helpers were replaced
// with pipeline-phase ones.
package telemetry

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter"` // "otlp", "stdout", or "none"
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// Provider manages OpenTelemetry tracing.
type Provider struct {
	config   Config
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// NewProvider creates a new telemetry provider.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{config: cfg, tracer: otel.Tracer("rampart")}, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "rampart-gateway"
	}

	slog.Info("creating exporter", "type", cfg.Exporter)

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "otlp":
		exporter, err = createOTLPExporter(cfg)
		if err != nil {
			return nil, err
		}
		slog.Info("OTLP exporter initialized", "endpoint", cfg.Endpoint)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			slog.Error("stdout exporter creation failed", "error", err)
			return nil, err
		}
		slog.Info("stdout trace exporter initialized")
	default:
		return &Provider{config: cfg, tracer: otel.Tracer("rampart")}, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)

	return &Provider{
		config:   cfg,
		tracer:   tp.Tracer("rampart"),
		provider: tp,
	}, nil
}

func createOTLPExporter(cfg Config) (sdktrace.SpanExporter, error) {
	ctx := context.Background()
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

// Tracer returns the tracer for creating spans.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Shutdown gracefully shuts down the trace provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}

// Enabled returns whether telemetry is enabled.
func (p *Provider) Enabled() bool {
	return p.config.Enabled && p.provider != nil
}

// Pipeline-phase span attributes, one per stage in the inspection
// pipeline (spec §4/§5) plus the supplemented LLM-proxy path.
const (
	AttrPrincipal    = "rampart.principal"
	AttrEndpoint     = "rampart.endpoint"
	AttrPhase        = "rampart.pipeline.phase"
	AttrVerdict      = "rampart.decision.recommendation"
	AttrRiskScore    = "rampart.decision.risk_score"
	AttrProvider     = "rampart.llm.provider"
	AttrModel        = "rampart.llm.model"
	AttrTokensUsed   = "rampart.llm.tokens_used"
	AttrCost         = "rampart.llm.cost"
	AttrRequestPath  = "url.path"
	AttrResponseCode = "http.response.status_code"
)

// StartRequestSpan starts a span for one inbound HTTP request.
func (p *Provider) StartRequestSpan(ctx context.Context, principal, method, path string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "gateway.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(AttrPrincipal, principal),
			attribute.String("http.request.method", method),
			attribute.String(AttrRequestPath, path),
		),
	)
}

// EndRequestSpan ends a request span with its outcome.
func (p *Provider) EndRequestSpan(span trace.Span, statusCode int, err error) {
	span.SetAttributes(attribute.Int(AttrResponseCode, statusCode))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// StartPhaseSpan starts a child span for one pipeline phase (authN,
// rate-limit, detectors, policy, usage).
func (p *Provider) StartPhaseSpan(ctx context.Context, phase string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "gateway.pipeline."+phase,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String(AttrPhase, phase)),
	)
}

// RecordDecision annotates the current span with a combiner verdict.
func RecordDecision(ctx context.Context, recommendation string, riskScore float64) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent("decision.rendered",
		trace.WithAttributes(
			attribute.String(AttrVerdict, recommendation),
			attribute.Float64(AttrRiskScore, riskScore),
		),
	)
}

// RecordLLMCall annotates the current span with the outbound provider
// call's cost and token usage, for the supplemented /llm/complete path.
func RecordLLMCall(ctx context.Context, provider, model string, tokensUsed int64, cost float64) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent("llm.call",
		trace.WithAttributes(
			attribute.String(AttrProvider, provider),
			attribute.String(AttrModel, model),
			attribute.Int64(AttrTokensUsed, tokensUsed),
			attribute.Float64(AttrCost, cost),
		),
	)
}

// DefaultConfig returns a default telemetry configuration.
func DefaultConfig() Config {
	return Config{Enabled: false, Exporter: "none", ServiceName: "rampart-gateway"}
}

// ConfigFromEnv creates config from environment variables.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		cfg.Enabled = true
		cfg.Exporter = "otlp"
		cfg.Endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		cfg.Insecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	}
	if os.Getenv("RAMPART_TELEMETRY_ENABLED") == "true" {
		cfg.Enabled = true
	}
	if v := os.Getenv("RAMPART_TELEMETRY_EXPORTER"); v != "" {
		cfg.Exporter = v
	}
	if v := os.Getenv("RAMPART_TELEMETRY_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}

	return cfg
}

// NoopProvider returns a provider that does nothing (for testing).
func NoopProvider() *Provider {
	return &Provider{config: Config{Enabled: false}, tracer: otel.Tracer("rampart-noop")}
}

// SpanFromContext extracts a span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// ContextWithTimeout creates a context with timeout for shutdown.
func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
