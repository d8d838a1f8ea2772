package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestWithLogger_FromContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json", Output: &buf})

	ctx := WithLogger(context.Background(), l)
	FromContext(ctx).Info("test message")

	if buf.Len() == 0 {
		t.Error("logger from context should produce output")
	}
}

func TestFromContext_Default(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Error("FromContext without logger should return slog.Default()")
	}
}

func TestL_EnrichesRecord(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json", Output: &buf})

	ctx := WithLogger(context.Background(), l)
	ctx = WithConnID(ctx, 42)
	ctx = WithTraceID(ctx, "01HZX")
	L(ctx).Info("request")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec["conn_id"] != float64(42) {
		t.Errorf("conn_id = %v, want 42", rec["conn_id"])
	}
	if rec["trace_id"] != "01HZX" {
		t.Errorf("trace_id = %v, want 01HZX", rec["trace_id"])
	}
}

func TestConnIDFromContext_Missing(t *testing.T) {
	if _, ok := ConnIDFromContext(context.Background()); ok {
		t.Error("ConnIDFromContext on empty context reported ok")
	}
	if TraceIDFromContext(context.Background()) != "" {
		t.Error("TraceIDFromContext on empty context returned a value")
	}
}
