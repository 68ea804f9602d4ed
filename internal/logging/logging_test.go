package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"off", zerolog.Disabled},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.raw)
		if err != nil {
			t.Errorf("parseLevel(%q): %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}

	if _, err := parseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewWritesToFile(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvLogFile, "")

	path := filepath.Join(t.TempDir(), "heaven.log")
	logger, closeFn, err := New(Options{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug().Str("target", "header").Msg("fragment replaced")
	if err := closeFn(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"target":"header"`) {
		t.Errorf("log file missing field: %s", data)
	}
}

func TestNewEnvOverridesLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFile, "")

	path := filepath.Join(t.TempDir(), "heaven.log")
	logger, closeFn, err := New(Options{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info().Msg("should be filtered")
	closeFn()

	data, _ := os.ReadFile(path)
	if len(data) != 0 {
		t.Errorf("expected no output at error level, got %s", data)
	}
}

func TestNewDiscardsWithoutSink(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvLogFile, "")

	logger, closeFn, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeFn()
	if logger.GetLevel() != zerolog.Disabled {
		t.Errorf("expected disabled logger, got %v", logger.GetLevel())
	}
}
