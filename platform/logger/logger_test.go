package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestWithContextAddsRequestAndTrace(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	ctx = context.WithValue(ctx, RequestIDKey, "req-1")

	l.WithContext(ctx).Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["request_id"] != "req-1" || line["trace_id"] != traceID.String() || line["span_id"] != spanID.String() {
		t.Fatalf("unexpected attributes %v", line)
	}
}

func TestWithContextWithoutValuesIsUnchanged(t *testing.T) {
	l := New("production")
	if l.WithContext(context.Background()) != l {
		t.Fatalf("expected the same logger")
	}
}
