package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"WARN", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"trace", slog.LevelInfo, false},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if tc.ok && err != nil {
			t.Errorf("ParseLevel(%q) error: %v", tc.in, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseLevel(%q) expected error", tc.in)
		}
		if err == nil && got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFileOutputAndDebugToggle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seismod.log")

	l, err := New(Config{Level: "info", Format: "json", Output: "file", FilePath: path, MaxSizeMB: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	l.Debug("hidden")
	l.SetDebug(true)
	l.Debug("visible")
	l.SetDebug(false)
	l.Debug("hidden again")
	l.Info("always")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Error("debug line logged while debug mode off")
	}
	if !strings.Contains(out, "visible") {
		t.Error("debug line missing while debug mode on")
	}
	if !strings.Contains(out, "always") {
		t.Error("info line missing")
	}
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.log")

	r, err := newRotator(path, 64, 2)
	if err != nil {
		t.Fatalf("newRotator: %v", err)
	}
	defer r.Close()

	line := strings.Repeat("x", 40) + "\n"
	for range 5 {
		if _, err := r.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if _, err := os.Stat(backupName(path, 1)); err != nil {
		t.Errorf("expected first backup to exist: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) > 3 {
		t.Errorf("expected at most live file + 2 backups, got %d files", len(entries))
	}
}
