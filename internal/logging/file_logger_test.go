package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestFileLogger(t *testing.T, level LogLevel) (*FileLogger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "agsync.log")
	logger, err := NewFileLogger(FileLoggerConfig{
		FilePath: logPath,
		Level:    level,
	})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	return logger, logPath
}

func readEntries(t *testing.T, logPath string) []LogEntry {
	t.Helper()
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entries []LogEntry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("parse log entry %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestFileLoggerWritesJSONEntries(t *testing.T) {
	logger, logPath := newTestFileLogger(t, DEBUG)

	logger.Debug("debug message", F("worker", 3))
	logger.Info("info message", F("path", "/data/a.txt"))
	logger.Warn("warn message")
	logger.Error("error message", F("retryable", true))
	logger.Close()

	entries := readEntries(t, logPath)
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}

	first := entries[0]
	if first.Level != "DEBUG" {
		t.Errorf("Level = %q, want DEBUG", first.Level)
	}
	if first.Message != "debug message" {
		t.Errorf("Message = %q, want %q", first.Message, "debug message")
	}
	if first.Fields["worker"] != float64(3) {
		t.Errorf("Fields[worker] = %v, want 3", first.Fields["worker"])
	}
	if entries[3].Fields["retryable"] != true {
		t.Errorf("Fields[retryable] = %v, want true", entries[3].Fields["retryable"])
	}
}

func TestFileLoggerFiltersBelowLevel(t *testing.T) {
	logger, logPath := newTestFileLogger(t, WARN)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("kept")
	logger.Close()

	if entries := readEntries(t, logPath); len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func TestFileLoggerCarriesTraceID(t *testing.T) {
	logger, logPath := newTestFileLogger(t, INFO)

	logger.WithTraceID("trace-123-456").Info("traced")
	logger.Close()

	entries := readEntries(t, logPath)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].TraceID != "trace-123-456" {
		t.Errorf("TraceID = %q, want trace-123-456", entries[0].TraceID)
	}
}

func TestFileLoggerTraceIDFromContext(t *testing.T) {
	logger, logPath := newTestFileLogger(t, INFO)

	ctx := ContextWithTraceID(context.Background(), "ctx-trace-789")
	logger.WithContext(ctx).Info("traced")
	logger.Close()

	entries := readEntries(t, logPath)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].TraceID != "ctx-trace-789" {
		t.Errorf("TraceID = %q, want ctx-trace-789", entries[0].TraceID)
	}
}

func TestFileLoggerRotatesBySize(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "agsync.log")

	logger, err := NewFileLogger(FileLoggerConfig{
		FilePath:      logPath,
		Level:         INFO,
		MaxFileSize:   100,
		RotateEnabled: true,
	})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	for i := 0; i < 20; i++ {
		logger.Info("a message long enough to push the file past its size cap")
	}
	logger.Close()

	files, err := filepath.Glob(filepath.Join(tempDir, "agsync.log*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) < 2 {
		t.Errorf("got %d log files, want the active file plus rotated ones", len(files))
	}
}

func TestFileLoggerSetLevel(t *testing.T) {
	logger, logPath := newTestFileLogger(t, DEBUG)

	logger.Debug("kept")
	logger.SetLevel(ERROR)
	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Error("kept")
	logger.Close()

	if entries := readEntries(t, logPath); len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}
