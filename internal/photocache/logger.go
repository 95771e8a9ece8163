// Package photocache provides logging infrastructure for cache operations
package photocache

import (
	"log/slog"
	"sync"

	"github.com/placewise/photocache/internal/logging"
)

// Package-level logger specific to the photo cache service
var (
	serviceLogger   *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	loggerCloseFunc func() error
	loggerOnce      sync.Once
	loggerMu        sync.RWMutex

	defaultLogPath = "logs/photocache.log"
)

// getLogger returns the package logger, initializing it on first use.
func getLogger() *slog.Logger {
	loggerMu.RLock()
	if serviceLogger != nil {
		defer loggerMu.RUnlock()
		return serviceLogger
	}
	loggerMu.RUnlock()

	loggerOnce.Do(func() {
		serviceLevelVar.Set(slog.LevelInfo)

		logger, closeFunc, err := logging.NewFileLogger(defaultLogPath, "photocache", serviceLevelVar)
		loggerMu.Lock()
		defer loggerMu.Unlock()
		if err != nil {
			// Fall back to the default logger instead of failing
			serviceLogger = slog.Default().With("service", "photocache")
			loggerCloseFunc = func() error { return nil }
			return
		}
		serviceLogger = logger
		loggerCloseFunc = closeFunc
	})

	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return serviceLogger
}

// CloseLogger releases the file logger resources.
func CloseLogger() error {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if loggerCloseFunc != nil {
		return loggerCloseFunc()
	}
	return nil
}

// SetLogLevel adjusts the photocache log level at runtime.
func SetLogLevel(level slog.Level) {
	serviceLevelVar.Set(level)
}
