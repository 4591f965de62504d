/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package logging hands out component loggers that share one text handler on
// stderr and one adjustable level.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var (
	level   = new(slog.LevelVar)
	handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
)

// Logger returns a logger tagged with the given component name.
func Logger(component string) *slog.Logger {
	return slog.New(handler).With("component", component)
}

// SetLevel changes the level of every component logger.
// Accepted values are debug, info, warn and error.
func SetLevel(name string) error {
	l, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level.Set(l)
	return nil
}

// Level returns the current level.
func Level() slog.Level {
	return level.Level()
}

// ParseLevel converts a level name to a slog.Level. The empty string is info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}
