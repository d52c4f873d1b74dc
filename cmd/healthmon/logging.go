package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logFile   *os.File
	loggingMu sync.Mutex
)

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// setupLogger installs the default structured logger. Output goes to stdout
// and, when path is set, is also appended to that file.
func setupLogger(level, path string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}

	loggingMu.Lock()
	defer loggingMu.Unlock()
	closeLoggerLocked()

	var out io.Writer = os.Stdout
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		out = io.MultiWriter(os.Stdout, f)
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler).With("app", "healthmon"))
	return nil
}

func closeLogger() {
	loggingMu.Lock()
	defer loggingMu.Unlock()
	closeLoggerLocked()
}

func closeLoggerLocked() {
	if logFile == nil {
		return
	}
	_ = logFile.Sync()
	_ = logFile.Close()
	logFile = nil
}
