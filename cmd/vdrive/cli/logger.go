// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates a structured logger for CLI command operations.
// Format "text" and "json" select a handler directly. "auto" uses
// slog.TextHandler when stderr is a terminal and slog.JSONHandler when it
// is piped or redirected.
//
// Callers scope the logger with command-specific context via With():
//
//	logger := cli.NewCommandLogger(slog.LevelInfo, "auto").With(
//	    "command", "put",
//	    "source", hostPath,
//	)
func NewCommandLogger(level slog.Level, format string) *slog.Logger {
	return newLogger(os.Stderr, level, format, IsTerminal(os.Stderr))
}

func newLogger(w io.Writer, level slog.Level, format string, terminal bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch {
	case format == "json":
		handler = slog.NewJSONHandler(w, options)
	case format == "text" || terminal:
		handler = slog.NewTextHandler(w, options)
	default:
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
