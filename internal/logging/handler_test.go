// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "failed to parse JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "authgate", Version: "1.0.0", Format: "json", Writer: &buf})

	logger.Info("test message")

	entry := decode(t, &buf)
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "authgate", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Contains(t, entry, "time", "time field missing")
	assert.Contains(t, entry, "level", "level field missing")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "authgate", Version: "1.0.0", Format: "text", Writer: &buf})

	logger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "test message", "Output missing message")
	assert.Contains(t, output, "service=authgate", "Output missing service")
}

func TestSetup_DefaultFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "authgate", Writer: &buf})

	logger.Info("test message")

	decode(t, &buf)
}

func TestSetup_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Level: slog.LevelWarn, Writer: &buf})

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Equal(t, "kept", decode(t, &buf)["msg"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "authgate", Writer: &buf})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "traced message")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_NoTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "authgate", Writer: &buf})

	logger.Info("no trace message")

	entry := decode(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestRedaction(t *testing.T) {
	t.Run("top-level secret attributes", func(t *testing.T) {
		var buf bytes.Buffer
		logger := Setup(Options{Writer: &buf})

		logger.Info("login", "email", "a@example.com", "password", "hunter2", "Refresh_Token", "abc")

		entry := decode(t, &buf)
		assert.Equal(t, "a@example.com", entry["email"])
		assert.Equal(t, Redacted, entry["password"])
		assert.Equal(t, Redacted, entry["Refresh_Token"])
		assert.NotContains(t, buf.String(), "hunter2")
	})

	t.Run("attributes bound with With", func(t *testing.T) {
		var buf bytes.Buffer
		logger := Setup(Options{Writer: &buf}).With("ticket", "0b7c")

		logger.Info("activation")

		assert.Equal(t, Redacted, decode(t, &buf)["ticket"])
	})

	t.Run("inside grouped attributes", func(t *testing.T) {
		var buf bytes.Buffer
		logger := Setup(Options{Writer: &buf})

		logger.Info("provider", slog.Group("link", slog.String("access_token", "gho_x"), slog.String("provider", "github")))

		link, ok := decode(t, &buf)["link"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, Redacted, link["access_token"])
		assert.Equal(t, "github", link["provider"])
	})

	t.Run("inside error context maps", func(t *testing.T) {
		var buf bytes.Buffer
		logger := Setup(Options{Writer: &buf})

		logger.Error("failed", "context", map[string]any{"token": "secret", "operation": "rotate"})

		ctxMap, ok := decode(t, &buf)["context"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, Redacted, ctxMap["token"])
		assert.Equal(t, "rotate", ctxMap["operation"])
	})
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger := SetDefault(Options{Service: "test-service", Version: "2.0.0"})

	assert.Same(t, logger, slog.Default())
}
