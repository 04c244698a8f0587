package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("RequestIDFromContext() = %q, want req-1", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("empty context returned %q", got)
	}
}

func TestFromContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Version: "test"})
	t.Cleanup(func() { Configure(Config{}) })

	ctx := ContextWithRequestID(context.Background(), "abc")
	l := FromContext(ctx, "pipeline")
	l.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decoding log line %q: %v", buf.String(), err)
	}
	if entry[FieldRequestID] != "abc" {
		t.Errorf("request_id = %v, want abc", entry[FieldRequestID])
	}
	if entry[FieldComponent] != "pipeline" {
		t.Errorf("component = %v, want pipeline", entry[FieldComponent])
	}
	if entry["service"] != "nomark" {
		t.Errorf("service = %v, want nomark", entry["service"])
	}
}
