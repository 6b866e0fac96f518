package config

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps LOG_LEVEL values to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

// SetupLogging points the std logger at stderr (and LOG_FILE when set) with
// prefix, and returns an slog logger writing to the same place. The returned
// func closes the log file.
func SetupLogging(prefix string, c Common) (*slog.Logger, func(), error) {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closeFn = func() { _ = f.Close() }
	}

	log.SetOutput(out)
	log.SetPrefix(prefix)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, closeFn, nil
}
