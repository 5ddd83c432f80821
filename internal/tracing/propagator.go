package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "docforge/pipeline"

// Context is the serialized trace correlation carried inside queue payloads.
// Fields are lowercase hex per the W3C trace-context encoding.
type Context struct {
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
	Flags   string `json:"flags,omitempty"`
}

// Valid reports whether the context carries a usable trace/span pair.
func (c Context) Valid() bool {
	tid, err := trace.TraceIDFromHex(c.TraceID)
	if err != nil || !tid.IsValid() {
		return false
	}
	sid, err := trace.SpanIDFromHex(c.SpanID)
	return err == nil && sid.IsValid()
}

// Capture extracts the active span context as explicit fields. Returns a zero
// Context when no span is recording on ctx.
func Capture(ctx context.Context) Context {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return Context{}
	}
	return Context{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
		Flags:   sc.TraceFlags().String(),
	}
}

// Restore attaches the serialized context to ctx as a remote parent so spans
// started afterwards become children of the submission-side span.
func (c Context) Restore(ctx context.Context) context.Context {
	sc, ok := c.spanContext()
	if !ok {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}

// Link builds a span link referencing this context. Used for cross-temporal
// correlation where the two operations are not causally nested in time.
func (c Context) Link() (trace.Link, bool) {
	sc, ok := c.spanContext()
	if !ok {
		return trace.Link{}, false
	}
	return trace.Link{SpanContext: sc}, true
}

func (c Context) spanContext() (trace.SpanContext, bool) {
	tid, err := trace.TraceIDFromHex(c.TraceID)
	if err != nil || !tid.IsValid() {
		return trace.SpanContext{}, false
	}
	sid, err := trace.SpanIDFromHex(c.SpanID)
	if err != nil || !sid.IsValid() {
		return trace.SpanContext{}, false
	}
	flags := trace.TraceFlags(0)
	if c.Flags == trace.FlagsSampled.String() {
		flags = trace.FlagsSampled
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: flags,
		Remote:     true,
	}), true
}

// Tracer returns the pipeline tracer from the globally registered provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSubmitSpan opens the root span for a job submission and returns the
// serialized context destined for the queue payload. A valid upstream
// reference, e.g. the client's upload operation, becomes a span link.
func StartSubmitSpan(ctx context.Context, jobID string, upstream Context) (context.Context, trace.Span, Context) {
	ctx, span := StartLinkedSpan(ctx, "gateway.submit", upstream)
	span.SetAttributes(attribute.String("docforge.job_id", jobID))
	return ctx, span, Capture(ctx)
}

// StartStageSpan derives one child span per stage on the executor side. The
// carried Context must already be restored onto ctx by the caller.
func StartStageSpan(ctx context.Context, stage, jobID string, attempt int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "pipeline."+stage, trace.WithAttributes(
		attribute.String("docforge.job_id", jobID),
		attribute.String("docforge.stage", stage),
		attribute.Int("docforge.attempt", attempt),
	))
}

// StartLinkedSpan opens a span that references earlier work via a link, e.g.
// an enhancement run pointing back at the original upload operation.
func StartLinkedSpan(ctx context.Context, name string, ref Context) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{}
	if link, ok := ref.Link(); ok {
		opts = append(opts, trace.WithLinks(link))
	}
	return Tracer().Start(ctx, name, opts...)
}
