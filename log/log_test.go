package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func captureLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	return NewWithHandler(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level}))
}

func TestModuleTagsEntries(t *testing.T) {
	var buf bytes.Buffer
	l := captureLogger(&buf, slog.LevelDebug)

	l.Module("coordinator").Info("round closed", "height", 3)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v (raw: %s)", err, buf.String())
	}
	if entry["module"] != "coordinator" {
		t.Fatalf("module = %v, want coordinator", entry["module"])
	}
	if entry["msg"] != "round closed" {
		t.Fatalf("msg = %v", entry["msg"])
	}
	if v, ok := entry["height"].(float64); !ok || v != 3 {
		t.Fatalf("height = %v, want 3", entry["height"])
	}
}

func TestWithAddsContext(t *testing.T) {
	var buf bytes.Buffer
	l := captureLogger(&buf, slog.LevelDebug)

	l.Module("server").With("client", "abc").Warn("dispatch failed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["module"] != "server" || entry["client"] != "abc" {
		t.Fatalf("missing context: %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := captureLogger(&buf, slog.LevelWarn)

	l.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %s", buf.String())
	}
	l.Error("surfaced")
	if buf.Len() == 0 {
		t.Fatal("error should pass at warn level")
	}
}

func TestDefaultLoggerReplacement(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}

	var buf bytes.Buffer
	l := captureLogger(&buf, slog.LevelInfo)
	SetDefault(l)
	defer SetDefault(New(slog.LevelInfo))

	Info("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Fatalf("package-level Info did not use the replaced default: %s", buf.String())
	}

	SetDefault(nil)
	if Default() != l {
		t.Fatal("SetDefault(nil) must be a no-op")
	}
}
