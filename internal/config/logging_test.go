package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", "chat_id", "c1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "chat_id=c1") {
		t.Errorf("expected warn line with attrs, got %q", out)
	}
}

func TestSetupLogFileKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"chatpane-2020-01-01T00-00-00.000.log", "chatpane-2020-01-02T00-00-00.000.log", "chatpane-2020-01-03T00-00-00.000.log"} {
		os.WriteFile(filepath.Join(dir, name), nil, 0600)
	}
	os.WriteFile(filepath.Join(dir, "other.txt"), nil, 0600)

	f, err := SetupLogFile(dir, 2)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	logs, _ := filepath.Glob(filepath.Join(dir, "chatpane-*.log"))
	if len(logs) != 2 {
		t.Fatalf("expected 2 log files, got %v", logs)
	}
	for _, l := range logs {
		if strings.Contains(l, "2020-01-01") || strings.Contains(l, "2020-01-02") {
			t.Errorf("old log %s should have been removed", l)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "other.txt")); err != nil {
		t.Error("unrelated files must be left alone")
	}
}
