package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// InjectHeaders writes the trace context of ctx into broker message headers.
func InjectHeaders(ctx context.Context, headers map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}

func ExtractHeaders(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}

// StartConsumeSpan continues the trace carried by a consumed message.
func StartConsumeSpan(ctx context.Context, operationName string, headers map[string]string) (context.Context, trace.Span) {
	ctx = ExtractHeaders(ctx, headers)
	return GetTracer("dtfcapture-broker").Start(ctx, operationName, trace.WithSpanKind(trace.SpanKindConsumer))
}

// HTTPTransport propagates the trace context on outbound calls.
func HTTPTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base)
}
