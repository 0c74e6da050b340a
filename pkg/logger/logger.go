// Package logger provides the process-wide log sink for tagscout.
package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base    *zap.Logger
	logFile *os.File
	mu      sync.Mutex
)

// Init initializes the global logger with the specified log file path.
// When verbose is set, debug messages are also echoed to stderr.
func Init(logPath string, verbose bool) error {
	mu.Lock()
	defer mu.Unlock()

	// Close previous log file if exists
	closeLocked()

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	logFile = f

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zap.DebugLevel),
	}
	if verbose {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), zap.DebugLevel))
	}

	base = zap.New(zapcore.NewTee(cores...))
	return nil
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	if base != nil {
		_ = base.Sync()
		base = nil
	}
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// L returns the structured logger for components that take a *zap.Logger.
// Returns a no-op logger before Init.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	if base == nil {
		return zap.NewNop()
	}
	return base
}
