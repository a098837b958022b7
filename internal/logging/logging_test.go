package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewWritesCloudLoggingShape(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")
	logger.Warn("backup skipped", slog.String("function", "backupFirestoreDaily"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["severity"] != "WARNING" {
		t.Fatalf("expected WARNING severity, got %#v", line["severity"])
	}
	if line["message"] != "backup skipped" {
		t.Fatalf("expected message key, got %#v", line)
	}
	if _, ok := line["level"]; ok {
		t.Fatalf("level key should be replaced: %#v", line)
	}
	if line["function"] != "backupFirestoreDaily" {
		t.Fatalf("missing attribute: %#v", line)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "error")
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	if ParseLevel("WARNING") != slog.LevelWarn || ParseLevel("nonsense") != slog.LevelInfo {
		t.Fatal("unexpected level parsing")
	}
}
