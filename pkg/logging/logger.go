package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, nil))

// InitLogging initializes logging. Release mode logs JSON, anything else logs text.
func InitLogging(mode string) {
	SetOutput(os.Stdout, mode == "release")
}

// SetOutput redirects the logger, mostly useful in tests.
func SetOutput(w io.Writer, json bool) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if json {
		logger = slog.New(slog.NewJSONHandler(w, opts))
		return
	}
	logger = slog.New(slog.NewTextHandler(w, opts))
}

// With returns a structured logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return logger.With(args...)
}

// Infof logs info level messages
func Infof(format string, v ...interface{}) {
	logger.Info(fmt.Sprintf(format, v...))
}

// Warnf logs warning level messages
func Warnf(format string, v ...interface{}) {
	logger.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs error level messages
func Errorf(format string, v ...interface{}) {
	logger.Error(fmt.Sprintf(format, v...))
}
