package obs

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLoggerSwapsSharedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := SetLogger(zap.New(core))
	defer SetLogger(prev)

	Logger().Info("hello", zap.String("k", "v"))
	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "hello" || entry.ContextMap()["k"] != "v" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	if _, err := InitLogger("chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
