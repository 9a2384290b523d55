// Package observability traces analyze_plant calls as debug-level slog records:
// one span per MCP tool call, HTTP request and vision request, plus metric
// datapoints for diagnosis outcomes and latency. Nothing is exported off-host.
package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config mirrors the observability section of config.yaml.
type Config struct {
	Enabled bool
}

// ShutdownFunc detaches the hooks; bootstrap calls it when the runtime closes.
type ShutdownFunc func(context.Context) error

var (
	loggerMu             sync.RWMutex
	instrumentationLog   *slog.Logger
	instrumentationState Config
)

func currentLogger() (*slog.Logger, Config) {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return instrumentationLog, instrumentationState
}

// Setup points the span and metric hooks at logger. With Enabled false every
// hook is a no-op, so the diagnosis path pays nothing.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	loggerMu.Lock()
	instrumentationLog = logger
	instrumentationState = cfg
	loggerMu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[OBSERVABILITY] spans and metrics enabled")
		} else {
			logger.InfoContext(ctx, "[OBSERVABILITY] disabled")
		}
	}
	return func(context.Context) error {
		loggerMu.Lock()
		instrumentationLog = nil
		instrumentationState = Config{}
		loggerMu.Unlock()
		return nil
	}, nil
}
