package kafkax

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092 ")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestMetaHeadersOmitEmptyTenant(t *testing.T) {
	headers := MetaHeaders(EventMeta{EventID: "e1", EventType: "appointment.booked"})
	if len(headers) != 2 || HeaderValue(headers, HeaderTenantID) != "" {
		t.Fatalf("unexpected headers %+v", headers)
	}
	headers = MetaHeaders(EventMeta{EventID: "e1", EventType: "x", TenantID: "org-1"})
	if HeaderValue(headers, HeaderTenantID) != "org-1" || HeaderValue(headers, HeaderEventID) != "e1" {
		t.Fatalf("unexpected headers %+v", headers)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	headers := InjectTraceHeaders(ctx, MetaHeaders(EventMeta{EventID: "e1", EventType: "x"}))
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatal("expected traceparent header to be appended")
	}
	got := trace.SpanContextFromContext(otel.GetTextMapPropagator().Extract(context.Background(), &headerCarrier{headers: headers}))
	if got.TraceID() != traceID {
		t.Fatalf("trace id mismatch: %s", got.TraceID())
	}
}

func TestReadyCheckSkippedWithoutBrokers(t *testing.T) {
	if ReadyCheck(nil) != nil {
		t.Fatal("expected nil check without brokers")
	}
}
