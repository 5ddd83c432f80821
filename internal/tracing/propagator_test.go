package tracing_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"docforge/internal/tracing"
)

func testTracer() trace.Tracer {
	return sdktrace.NewTracerProvider().Tracer("test")
}

func TestCaptureReturnsZeroWithoutSpan(t *testing.T) {
	c := tracing.Capture(context.Background())
	if c.Valid() {
		t.Fatalf("expected invalid context, got %+v", c)
	}
}

func TestCaptureAndRestoreRoundTrip(t *testing.T) {
	ctx, span := testTracer().Start(context.Background(), "submit")
	captured := tracing.Capture(ctx)
	span.End()

	if !captured.Valid() {
		t.Fatalf("expected valid captured context, got %+v", captured)
	}

	restored := captured.Restore(context.Background())
	sc := trace.SpanContextFromContext(restored)
	if !sc.IsValid() || !sc.IsRemote() {
		t.Fatalf("expected valid remote span context, got %+v", sc)
	}
	if sc.TraceID().String() != captured.TraceID {
		t.Fatalf("trace id mismatch: %s vs %s", sc.TraceID(), captured.TraceID)
	}
	if sc.SpanID().String() != captured.SpanID {
		t.Fatalf("span id mismatch: %s vs %s", sc.SpanID(), captured.SpanID)
	}
}

func TestStageSpanIsChildOfCarriedContext(t *testing.T) {
	provider := sdktrace.NewTracerProvider()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	ctx, submitSpan := testTracer().Start(context.Background(), "submit")
	carried := tracing.Capture(ctx)
	submitSpan.End()

	// A different process would start from a fresh background context.
	claimCtx := carried.Restore(context.Background())
	stageCtx, stageSpan := tracing.StartStageSpan(claimCtx, "analysis", "job-1", 1)
	defer stageSpan.End()

	sc := trace.SpanContextFromContext(stageCtx)
	if sc.TraceID().String() != carried.TraceID {
		t.Fatalf("stage span not in submission trace: %s vs %s", sc.TraceID(), carried.TraceID)
	}
	if sc.SpanID().String() == carried.SpanID {
		t.Fatal("stage span should have its own span id")
	}
}

func TestSubmitSpanLinksUpstreamReference(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	upCtx, upSpan := testTracer().Start(context.Background(), "upload")
	upstream := tracing.Capture(upCtx)
	upSpan.End()

	_, linked, carried := tracing.StartSubmitSpan(context.Background(), "job-1", upstream)
	linked.End()
	if !carried.Valid() {
		t.Fatalf("expected valid carried context, got %+v", carried)
	}

	_, plain, _ := tracing.StartSubmitSpan(context.Background(), "job-2", tracing.Context{})
	plain.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded spans = %d, want 2", len(spans))
	}
	links := spans[0].Links()
	if len(links) != 1 {
		t.Fatalf("links = %d, want 1", len(links))
	}
	if links[0].SpanContext.TraceID().String() != upstream.TraceID {
		t.Fatalf("link trace = %s, want %s", links[0].SpanContext.TraceID(), upstream.TraceID)
	}
	if len(spans[1].Links()) != 0 {
		t.Fatal("submission without an upstream reference should carry no links")
	}
}

func TestLinkRequiresValidContext(t *testing.T) {
	if _, ok := (tracing.Context{}).Link(); ok {
		t.Fatal("zero context should not produce a link")
	}
	ctx, span := testTracer().Start(context.Background(), "upload")
	defer span.End()
	carried := tracing.Capture(ctx)
	link, ok := carried.Link()
	if !ok {
		t.Fatal("expected link from valid context")
	}
	if link.SpanContext.TraceID().String() != carried.TraceID {
		t.Fatal("link references wrong trace")
	}
}
