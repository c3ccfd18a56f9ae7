package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newBufferedConsole(buf *bytes.Buffer, level LogLevel) *ConsoleLogger {
	return NewConsoleLogger(ConsoleLoggerConfig{
		Writer: buf,
		Level:  level,
	})
}

func TestMultiLoggerFansOut(t *testing.T) {
	var buf1, buf2 bytes.Buffer

	multi := NewMultiLogger(
		newBufferedConsole(&buf1, INFO),
		newBufferedConsole(&buf2, INFO),
	)
	multi.Info("fan out")

	if buf1.Len() == 0 {
		t.Error("first logger received nothing")
	}
	if buf2.Len() == 0 {
		t.Error("second logger received nothing")
	}
	if buf1.String() != buf2.String() {
		t.Errorf("loggers diverged:\n%s\n%s", buf1.String(), buf2.String())
	}
}

func TestMultiLoggerAllLevels(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiLogger(newBufferedConsole(&buf, DEBUG))

	multi.Debug("d")
	multi.Info("i")
	multi.Warn("w")
	multi.Error("e")

	if got := strings.Count(buf.String(), "\n"); got != 4 {
		t.Errorf("got %d lines, want 4", got)
	}
}

func TestMultiLoggerPropagatesTraceID(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiLogger(newBufferedConsole(&buf, INFO))

	multi.WithTraceID("trace-fanout-1").Info("traced")

	if !strings.Contains(buf.String(), "trace-fa") {
		t.Errorf("output missing trace ID prefix: %q", buf.String())
	}
}

func TestMultiLoggerPropagatesContext(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiLogger(newBufferedConsole(&buf, INFO))

	ctx := ContextWithTraceID(context.Background(), "ctx-fanout-2")
	multi.WithContext(ctx).Info("traced")

	if !strings.Contains(buf.String(), "ctx-fano") {
		t.Errorf("output missing trace ID prefix: %q", buf.String())
	}
}

func TestMultiLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiLogger(newBufferedConsole(&buf, DEBUG))

	multi.Debug("kept")
	multi.SetLevel(ERROR)
	multi.Debug("dropped")
	multi.Info("dropped")
	multi.Error("kept")

	if got := strings.Count(buf.String(), "\n"); got != 2 {
		t.Errorf("got %d lines, want 2", got)
	}
}

func TestMultiLoggerCloseClosesAll(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "agsync.log")
	fileLogger, err := NewFileLogger(FileLoggerConfig{
		FilePath: logPath,
		Level:    INFO,
	})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	var buf bytes.Buffer
	multi := NewMultiLogger(fileLogger, newBufferedConsole(&buf, INFO))
	multi.Info("to both", F("key", "value"))

	if err := multi.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if buf.Len() == 0 {
		t.Error("console received nothing")
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("log file is empty")
	}
}
