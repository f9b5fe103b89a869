package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONHandlerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Config{Level: "warn", Format: "json"})
	l.Info("dropped")
	l.Warn("kept", "session", "abc")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "kept" || rec["session"] != "abc" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestTraceIDRoundTrip(t *testing.T) {
	ctx, id := EnsureTraceID(context.Background())
	if id == "" {
		t.Fatal("expected a generated trace id")
	}
	again, same := EnsureTraceID(ctx)
	if same != id || TraceID(again) != id {
		t.Errorf("trace id changed: %q -> %q", id, same)
	}
	if TraceID(WithTraceID(context.Background(), "fixed")) != "fixed" {
		t.Error("WithTraceID did not store the id")
	}
}

func TestFromContext(t *testing.T) {
	fallback := Discard()
	if FromContext(context.Background(), fallback) != fallback {
		t.Error("expected fallback logger")
	}
	l := Discard()
	if FromContext(WithLogger(context.Background(), l), fallback) != l {
		t.Error("expected stored logger")
	}
}
