package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"perch/internal/config"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Platform.BaseURL = "http://127.0.0.1:1"
	cfgVal.Platform.Token = "test-token"

	encoded, err := toml.Marshal(cfgVal)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRootHelpListsCommands(t *testing.T) {
	stdout, _, err := runCLI(t, "--help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, command := range []string{"daemon", "status", "enrich", "config", "test-notify"} {
		if !strings.Contains(stdout, command) {
			t.Errorf("help output missing %q", command)
		}
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "perch", "config.toml")

	stdout, _, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(stdout, "Wrote sample configuration") {
		t.Fatalf("unexpected output %q", stdout)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}

	if _, _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error without --overwrite")
	}
	if _, _, err := runCLI(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestEnrichRejectsUnknownBroadcast(t *testing.T) {
	path := writeTestConfig(t)
	if _, _, err := runCLI(t, "--config", path, "enrich", "no-such-id"); err == nil {
		t.Fatal("expected error for unknown broadcast")
	}
}

func TestStatusFailsWithoutDaemon(t *testing.T) {
	path := writeTestConfig(t)
	if _, _, err := runCLI(t, "--config", path, "status"); err == nil {
		t.Fatal("expected error when daemon is not running")
	}
}
