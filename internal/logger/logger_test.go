package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chaz8081/hrkit/internal/config"
)

func TestJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slogFor(&buf, config.LogConfig{Level: "info", Format: "json"})

	log.Info("[COORD] sensor selected", "id", "sim:1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v, output: %s", err, buf.String())
	}
	if entry["msg"] != "[COORD] sensor selected" {
		t.Errorf("msg = %q, want %q", entry["msg"], "[COORD] sensor selected")
	}
	if entry["id"] != "sim:1" {
		t.Errorf("id = %v, want sim:1", entry["id"])
	}
}

func TestTextHandlerFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	log := slogFor(&buf, config.LogConfig{Level: "warn", Format: "text"})

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, "msg=shown") {
		t.Errorf("warn record missing: %s", out)
	}
}

func TestOpenOutputStdStreams(t *testing.T) {
	tests := []struct {
		output string
		want   *os.File
	}{
		{"stdout", os.Stdout},
		{"STDOUT", os.Stdout},
		{"stderr", os.Stderr},
		{"", os.Stderr},
	}
	for _, tt := range tests {
		w, closer, err := openOutput(tt.output)
		if err != nil {
			t.Fatalf("openOutput(%q): %v", tt.output, err)
		}
		if w != tt.want {
			t.Errorf("openOutput(%q) = %v, want %v", tt.output, w, tt.want)
		}
		if err := closer(); err != nil {
			t.Errorf("closer for %q: %v", tt.output, err)
		}
	}
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "hrkit.log")

	log, closer, err := New(config.LogConfig{Level: "debug", Format: "text", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("[BLE] scan started")
	if err := closer(); err != nil {
		t.Fatalf("closer: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "[BLE] scan started") {
		t.Errorf("log file missing record: %s", data)
	}
}

func TestNewBadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := New(config.LogConfig{Output: filepath.Join(blocker, "sub", "x.log")}); err == nil {
		t.Error("New should fail when the log directory cannot be created")
	}
}

func slogFor(w io.Writer, cfg config.LogConfig) *slog.Logger {
	return slog.New(newHandler(w, cfg))
}
