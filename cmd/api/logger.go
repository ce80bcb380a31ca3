package main

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the JSON slog logger. When logFile is set, output is teed
// to stdout and a size-rotated file; the returned closer flushes that file.
// An unknown level falls back to info.
func newLogger(level, logFile string) (*slog.Logger, io.Closer) {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel = slog.LevelInfo
	}

	var (
		out    io.Writer = os.Stdout
		closer io.Closer = io.NopCloser(nil)
	)
	if logFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closer = rotating
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: logLevel})), closer
}
