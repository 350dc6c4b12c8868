package common

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a JSON logger on stderr. When file is set, log lines are
// also written to a rotated file. quiet overrides level with error.
// The returned func closes the log file.
func NewLogger(level, file string, quiet bool) (*slog.Logger, func()) {
	logLevel := ParseLevel(level)
	if quiet {
		logLevel = slog.LevelError
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error(
				"Failed to create log directory", "path", filepath.Dir(file), "error", err,
			)
		} else {
			rotator := &lumberjack.Logger{
				Filename:   file,
				MaxSize:    5,
				MaxBackups: 3,
				MaxAge:     30,
				Compress:   true,
			}
			out = io.MultiWriter(os.Stderr, rotator)
			closeFn = func() { _ = rotator.Close() }
		}
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: logLevel}))
	return logger, closeFn
}
