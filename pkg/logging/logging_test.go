package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"ERROR", LevelError},
		{"warn", LevelWarn},
		{"WARNING", LevelWarn},
		{"Info", LevelInfo},
		{"DEBUG", LevelDebug},
		{"", LevelInfo},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLevelString(t *testing.T) {
	if LevelWarn.String() != "WARN" || LevelDebug.String() != "DEBUG" {
		t.Error("unexpected level names")
	}
	if LogLevel(99).String() != "UNKNOWN" {
		t.Error("out-of-range level should be UNKNOWN")
	}
}

func TestLoggerWritesBothFormats(t *testing.T) {
	dir := t.TempDir()
	l, err := newLogger(Config{
		BaseDir:    dir,
		Component:  "test",
		Level:      LevelDebug,
		EnableJSON: true,
	})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}

	l.logMessage(LevelInfo, "hello", "key", "value")
	l.logFile.Close()
	l.jsonFile.Close()

	plain, err := os.ReadFile(filepath.Join(l.logDir, "reclaim.log"))
	if err != nil {
		t.Fatalf("reading plain log: %v", err)
	}
	if !strings.Contains(string(plain), "hello") || !strings.Contains(string(plain), "key=value") {
		t.Errorf("plain log missing content: %q", plain)
	}

	raw, err := os.ReadFile(filepath.Join(l.logDir, "events.jsonl"))
	if err != nil {
		t.Fatalf("reading json log: %v", err)
	}
	var entry Entry
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &entry); err != nil {
		t.Fatalf("events.jsonl line is not valid JSON: %v", err)
	}
	if entry.Message != "hello" || entry.Level != "INFO" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Properties["key"] != "value" {
		t.Errorf("properties lost: %v", entry.Properties)
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	l, err := newLogger(Config{BaseDir: dir, Level: LevelWarn})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}

	l.logMessage(LevelDebug, "too detailed")
	l.logMessage(LevelError, "important")
	l.logFile.Close()

	plain, err := os.ReadFile(filepath.Join(l.logDir, "reclaim.log"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(plain), "too detailed") {
		t.Error("debug message written at WARN level")
	}
	if !strings.Contains(string(plain), "important") {
		t.Error("error message missing at WARN level")
	}
}
