package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"perch/internal/logging"
	"perch/internal/services"
)

func TestNewWritesConsoleFormat(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "perch.log")

	logger, err := logging.New(logging.Options{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("broadcast scheduled",
		logging.String(logging.FieldComponent, "scheduler"),
		logging.String(logging.FieldBroadcastID, "b-1"),
	)

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "scheduler: broadcast scheduled") {
		t.Fatalf("missing component prefix in %q", line)
	}
	if !strings.Contains(line, "broadcast_id=b-1") {
		t.Fatalf("missing broadcast_id in %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "perch.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := services.WithBroadcastID(context.Background(), "b-7")
	ctx = services.WithOperation(ctx, "stop")
	logging.WithContext(ctx, logger).Info("stopping")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	for _, want := range []string{"broadcast_id=b-7", "operation=stop"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("should not panic", logging.Error(nil))
}
