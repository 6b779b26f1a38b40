package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

// captureDefault redirects the default logger into a buffer for the
// duration of the test.
func captureDefault(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestFromContext_RequestID(t *testing.T) {
	buf := captureDefault(t)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	FromContext(ctx).Info("handled")

	if out := buf.String(); !strings.Contains(out, "request_id=req-42") {
		t.Errorf("log line missing request id: %q", out)
	}
}

func TestFromContext_NoRequestID(t *testing.T) {
	buf := captureDefault(t)

	FromContext(context.Background()).Info("handled")

	if out := buf.String(); strings.Contains(out, "request_id") {
		t.Errorf("log line has request id without one in context: %q", out)
	}
}

func TestWithFields(t *testing.T) {
	buf := captureDefault(t)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-7")
	WithFields(ctx, "method", "GET", "path", "/healthz").Info("request")

	out := buf.String()
	for _, want := range []string{"request_id=req-7", "method=GET", "path=/healthz"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %q", want, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
