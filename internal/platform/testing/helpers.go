package testing

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"plant-detector-go/internal/platform/config"
	"plant-detector-go/internal/platform/logging"
	"plant-detector-go/internal/utils"
)

func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Log = config.LogConfig{
		Level: "DEBUG",
		Dir:   t.TempDir(),
		File:  "test.log",
	}
	cfg.Vision.APIKey = "test-key"
	return cfg
}

func SetupTestLogger(t *testing.T) *utils.Logger {
	t.Helper()

	cfg := SetupTestConfig(t)
	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
		Console:  io.Discard,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })

	return logger.Legacy()
}

// WriteImage writes data into a temp file and returns its path.
func WriteImage(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write image fixture: %v", err)
	}
	return path
}

// JPEGHeader is the minimal SOI marker prefix used by fixtures.
var JPEGHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
