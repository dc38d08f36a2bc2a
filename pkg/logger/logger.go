package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Logger struct {
	slog *slog.Logger
}

func New(w io.Writer, level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{slog: slog.New(handler)}
}

func (l *Logger) Info(format string, v ...any) {
	l.log(slog.LevelInfo, format, v...)
}

func (l *Logger) Warn(format string, v ...any) {
	l.log(slog.LevelWarn, format, v...)
}

func (l *Logger) Error(format string, v ...any) {
	l.log(slog.LevelError, format, v...)
}

func (l *Logger) Debug(format string, v ...any) {
	l.log(slog.LevelDebug, format, v...)
}

func (l *Logger) Fatal(format string, v ...any) {
	l.log(slog.LevelError, format, v...)
	os.Exit(1)
}

func (l *Logger) log(level slog.Level, format string, v ...any) {
	ctx := context.Background()
	if !l.slog.Enabled(ctx, level) {
		return
	}
	l.slog.Log(ctx, level, fmt.Sprintf(format, v...))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Global logger instance
var GlobalLogger = New(os.Stdout, "info", "text")

// Configure replaces the global logger. It is called once from main after the
// configuration has been loaded.
func Configure(level, format string) {
	GlobalLogger = New(os.Stdout, level, format)
}

// Convenience functions
func Info(format string, v ...any) {
	GlobalLogger.Info(format, v...)
}

func Warn(format string, v ...any) {
	GlobalLogger.Warn(format, v...)
}

func Error(format string, v ...any) {
	GlobalLogger.Error(format, v...)
}

func Debug(format string, v ...any) {
	GlobalLogger.Debug(format, v...)
}

func Fatal(format string, v ...any) {
	GlobalLogger.Fatal(format, v...)
}
