package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestFields(t *testing.T) {
	f := fields([]any{"id", 7, "error", errors.New("boom"), "dangling"})

	if f["id"] != 7 {
		t.Errorf("Expected id 7, got %v", f["id"])
	}
	if f["error"] != "boom" {
		t.Errorf("Expected error string, got %v", f["error"])
	}
	if f["!BADKEY"] != "dangling" {
		t.Errorf("Expected dangling key to be kept, got %v", f["!BADKEY"])
	}
}

func TestConfigure_JSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	Configure("debug", "json")
	t.Cleanup(func() {
		Configure("info", "console")
		SetOutput(os.Stderr)
	})

	Debug("Impact created", "id", 12)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "Impact created" {
		t.Errorf("Expected msg field, got %v", line["msg"])
	}
	if line["id"] != float64(12) {
		t.Errorf("Expected id field 12, got %v", line["id"])
	}
}

func TestConfigure_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	Configure("warn", "console")
	t.Cleanup(func() {
		Configure("info", "console")
		SetOutput(os.Stderr)
	})

	Info("hidden")
	Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("Warn line missing: %q", out)
	}
}
