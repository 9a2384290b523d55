// Package logging builds the plant-detector log provider: a tagged console
// logger on stderr for MCP hosts plus a daily JSON file for diagnosis history.
package logging

import (
	"fmt"
	"io"
	"log/slog"

	"plant-detector-go/internal/utils"
)

// Config mirrors the log section of config.yaml.
type Config struct {
	Level    string
	Dir      string
	Filename string
	Console  io.Writer
}

// Logger hands the same sinks to the tagged API used by the diagnosis and
// vision packages and to slog consumers such as the MCP transports.
type Logger struct {
	legacy *utils.Logger
}

// New opens the log provider. An unwritable Dir degrades to console-only
// output instead of failing.
func New(cfg Config) (*Logger, error) {
	logCfg := &utils.LogCfg{
		LogLevel: cfg.Level,
		LogDir:   cfg.Dir,
		LogFile:  cfg.Filename,
		Console:  cfg.Console,
	}
	legacy, err := utils.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &Logger{legacy: legacy}, nil
}

// Legacy exposes the tagged logger.
func (l *Logger) Legacy() *utils.Logger {
	return l.legacy
}

// Slog exposes the console side as a *slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.legacy.Slog()
}

// FilePath reports where diagnosis history is written, "" when console-only.
func (l *Logger) FilePath() string {
	return l.legacy.FilePath()
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	return l.legacy.Close()
}
