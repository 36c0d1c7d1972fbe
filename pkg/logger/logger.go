package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/killallgit/scout/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu            sync.RWMutex
	defaultLogger *zap.Logger
	logFile       *os.File
)

// Init initializes the default logger from the global config
func Init() error {
	mu.RLock()
	done := defaultLogger != nil
	mu.RUnlock()
	if done {
		return nil
	}

	settings := config.Get()
	level := ParseLevel(settings.Logging.Level)
	path := config.ResolvePath(settings.Logging.LogFile)

	if err := New(level, path, settings.Logging.Preserve); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// New builds a file-backed JSON logger and installs it as the default.
// Errors are mirrored to stderr.
func New(level zapcore.Level, path string, preserve bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if preserve {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level)
	stderrCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel && l >= level }),
	)

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = file
	defaultLogger = zap.New(zapcore.NewTee(fileCore, stderrCore))
	return nil
}

// SetCore replaces the default logger's core (useful for testing with zaptest/observer)
func SetCore(core zapcore.Core) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = zap.New(core)
}

// Reset drops the default logger; subsequent log calls are no-ops
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = nil
}

// ParseLevel converts a config string to a zap level, defaulting to info
func ParseLevel(levelStr string) zapcore.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func base() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if defaultLogger == nil {
		return zap.NewNop()
	}
	return defaultLogger
}

// Close flushes buffered entries and closes the log file
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger != nil {
		_ = defaultLogger.Sync()
	}
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// Package-level convenience functions using the default logger

// Debug logs a printf-style debug message using the default logger
func Debug(format string, args ...any) {
	base().Sugar().Debugf(format, args...)
}

// Info logs a printf-style info message using the default logger
func Info(format string, args ...any) {
	base().Sugar().Infof(format, args...)
}

// Warn logs a printf-style warning using the default logger
func Warn(format string, args ...any) {
	base().Sugar().Warnf(format, args...)
}

// Error logs a printf-style error using the default logger
func Error(format string, args ...any) {
	base().Sugar().Errorf(format, args...)
}
