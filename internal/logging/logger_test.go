package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_WritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewFromZap(zap.New(core)).With("program", "lab01")

	logger.Debug("candidate started", "pid", 42)
	logger.Warn("cleanup failed", "dir", "/tmp/x")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["program"] != "lab01" {
		t.Errorf("expected program field, got %v", fields)
	}
	if fields["pid"] != int64(42) {
		t.Errorf("expected pid 42, got %v (%T)", fields["pid"], fields["pid"])
	}
	if entries[1].Level != zap.WarnLevel {
		t.Errorf("expected warn level, got %s", entries[1].Level)
	}
}

func TestNop(t *testing.T) {
	var l Logger = Nop()
	l.Info("ignored", "k", "v")
	if err := l.Sync(); err != nil {
		t.Errorf("nop sync: %v", err)
	}
}
