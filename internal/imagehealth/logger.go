// Package imagehealth provides logging infrastructure for health check runs
package imagehealth

import (
	"log/slog"
	"sync"

	"github.com/placewise/photocache/internal/logging"
)

// Package-level logger specific to the image health service
var (
	serviceLogger   *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	loggerCloseFunc func() error
	loggerOnce      sync.Once
	loggerMu        sync.RWMutex

	defaultLogPath = "logs/imagehealth.log"
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

		logger, closeFunc, err := logging.NewFileLogger(defaultLogPath, "imagehealth", serviceLevelVar)
		loggerMu.Lock()
		defer loggerMu.Unlock()
		if err != nil {
			serviceLogger = slog.Default().With("service", "imagehealth")
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

// SetLogLevel adjusts the imagehealth log level at runtime.
func SetLogLevel(level slog.Level) {
	serviceLevelVar.Set(level)
}
