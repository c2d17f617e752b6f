package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")

	logger, closer, err := NewLogger(Config{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info().Str("spread", "0.40").Msg("hello")
	closer()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"spread":"0.40"`) {
		t.Fatalf("log line missing field: %s", data)
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, closer, err := NewLogger(Config{Level: "nonsense"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer closer()

	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("unexpected level %s", logger.GetLevel())
	}
}

func TestNewLoggerBadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "bot.log")
	if _, _, err := NewLogger(Config{Output: path}); err == nil {
		t.Fatal("expected error for unwritable path")
	}
}
