package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))
	ctx = WithFields(ctx, zap.String("request_id", "r-1"))

	L(ctx).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["request_id"] != "r-1" {
		t.Fatalf("expected request_id field, got %#v", entries[0].ContextMap())
	}
}

func TestNewHonoursLevel(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{Level: "warn"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info should be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("warn should be enabled")
	}
}
