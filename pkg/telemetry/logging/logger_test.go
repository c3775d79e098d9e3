package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("hello", "user_id", "u1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", record["msg"])
	}
	if record["user_id"] != "u1" {
		t.Errorf("user_id = %v, want u1", record["user_id"])
	}
}

func TestNewTextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "debug", Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Debug("tracing")
	if !strings.Contains(buf.String(), "tracing") {
		t.Errorf("output %q does not contain the message", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info record emitted at warn level: %q", buf.String())
	}

	logger.Warn("emitted")
	if buf.Len() == 0 {
		t.Error("warn record suppressed at warn level")
	}
}

func TestDefaultsToInfoJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Debug("suppressed")
	if buf.Len() != 0 {
		t.Error("debug record emitted at default level")
	}

	logger.Info("emitted")
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("default format is not JSON: %v", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("unknown level accepted")
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestSetupInstallsDefault(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	var buf bytes.Buffer
	logger, err := Setup(Config{Level: "info", Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if slog.Default() != logger {
		t.Error("Setup did not install the logger as slog default")
	}
}
