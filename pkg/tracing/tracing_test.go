package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return recorder
}

func TestStartSpan(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"success", nil, false},
		{"failure", errors.New("no face detected"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := withRecorder(t)

			ctx, end := StartSpan(context.Background(), "verify", attribute.String("event.id", "evt-1"))
			AddAttributes(ctx, attribute.Int("config.version", 3))
			end(tt.err)

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			span := spans[0]
			if span.Name() != "verify" {
				t.Errorf("expected span name verify, got %q", span.Name())
			}
			got := map[attribute.Key]attribute.Value{}
			for _, kv := range span.Attributes() {
				got[kv.Key] = kv.Value
			}
			if got["event.id"].AsString() != "evt-1" {
				t.Errorf("missing event.id attribute: %v", got)
			}
			if got["config.version"].AsInt64() != 3 {
				t.Errorf("missing config.version attribute: %v", got)
			}
			if tt.wantErr && span.Status().Code != codes.Error {
				t.Errorf("expected error status, got %v", span.Status().Code)
			}
			if !tt.wantErr && span.Status().Code == codes.Error {
				t.Errorf("unexpected error status")
			}
		})
	}
}

func TestStartClientSpan(t *testing.T) {
	recorder := withRecorder(t)

	_, end := StartClientSpan(context.Background(), "infer", "inference", attribute.String("model", "arcface_int8"))
	end(nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].SpanKind() != trace.SpanKindClient {
		t.Errorf("expected client span, got %v", spans[0].SpanKind())
	}
}
