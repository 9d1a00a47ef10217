package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"combolock/internal/lock"
)

// LogLevel represents the available logging levels
type LogLevel string

const (
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
)

// parseLogLevel converts a string to a LogLevel
func parseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "info":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be error, warn, info, or debug)", level)
	}
}

// setupLogger creates a text logger on stdout at the given level.
func setupLogger(level LogLevel) *slog.Logger {
	return newLogger(os.Stdout, level)
}

func newLogger(w io.Writer, level LogLevel) *slog.Logger {
	var slogLevel slog.Level

	switch level {
	case LogLevelError:
		slogLevel = slog.LevelError
	case LogLevelWarn:
		slogLevel = slog.LevelWarn
	case LogLevelDebug:
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel}))
}

// logSignal returns a signal subscriber that writes each signal at debug
// level.
func logSignal(logger *slog.Logger) func(lock.Signal) {
	return func(s lock.Signal) {
		switch sig := s.(type) {
		case lock.RotationChanged:
			logger.Debug("rotation", "degrees", sig.Degrees)
		case lock.NumberChanged:
			logger.Debug("number", "number", sig.Number)
		case lock.DirectionChanged:
			logger.Debug("direction", "direction", sig.Direction.String())
		case lock.ResetPulsed:
			logger.Debug("reset")
		case lock.UnlockedChanged:
			logger.Info("unlocked changed", "unlocked", sig.Unlocked)
		case lock.CombinationChanged:
			logger.Info("combination", "lock_id", sig.LockID, "combination", sig.Combination.String())
		}
	}
}
