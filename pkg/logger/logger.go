// Package logger provides the process-wide structured logger.
//
// It is a thin wrapper over go.uber.org/zap exposing the package-level
// call shape used throughout this codebase (logger.Info, logger.Infof, ...).
// Callers obtain a log level from MCP_PROXY_LOG_LEVEL or the --debug flag
// and call Initialize once during process startup.
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log *zap.SugaredLogger
)

func init() {
	log = newLogger(false)
}

// Initialize (re)configures the package logger with the level read from
// MCP_PROXY_LOG_LEVEL (debug|info|warn|error), defaulting to info. The
// --debug flag is applied separately by calling SetDebug(true).
func Initialize() {
	debug := false
	if v := strings.ToLower(os.Getenv("MCP_PROXY_LOG_LEVEL")); v == "debug" {
		debug = true
	}
	SetDebug(debug)
}

// SetDebug swaps the active logger for one at debug or info level.
func SetDebug(debug bool) {
	mu.Lock()
	defer mu.Unlock()
	log = newLogger(debug)
}

func newLogger(debug bool) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	} else if v := strings.ToLower(os.Getenv("MCP_PROXY_LOG_LEVEL")); v != "" {
		var parsed zapcore.Level
		if err := parsed.UnmarshalText([]byte(v)); err == nil {
			level = parsed
		}
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(cfg)

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	return zap.New(core).Sugar()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Debug logs at debug level.
func Debug(args ...any) { current().Debug(args...) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { current().Debugf(format, args...) }

// Info logs at info level.
func Info(args ...any) { current().Info(args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { current().Infof(format, args...) }

// Warn logs at warn level.
func Warn(args ...any) { current().Warn(args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { current().Warnf(format, args...) }

// Error logs at error level.
func Error(args ...any) { current().Error(args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { current().Errorf(format, args...) }

// Sync flushes any buffered log entries. Call before process exit.
func Sync() error {
	return current().Sync()
}
