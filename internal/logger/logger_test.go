package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/example/whatsapp-gateway/internal/logger"
)

func TestNewWritesJSONToProvidedWriter(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New("production", "info", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log.Info().Str("component", "test").Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"component":"test"`) || !strings.Contains(out, `"message":"hello"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New("production", "warn", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn line missing: %s", out)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := logger.New("production", "shouting"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
