// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging creates the structured loggers used by the commands.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options contains the [New] options.
type Options struct {
	// File is the optional file where to write logs. If empty,
	// we write to the standard error. The file is rotated.
	File string

	// Format is "json" or "text". If empty, we use "json".
	Format string

	// Verbose enables debug messages.
	Verbose bool
}

// New creates a new [*slog.Logger] and returns it along with the
// [io.Closer] releasing its resources.
func New(opts *Options) (*slog.Logger, io.Closer, error) {
	var (
		closer io.Closer = io.NopCloser(nil)
		w      io.Writer = os.Stderr
	)
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, err
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		closer, w = rotator, rotator
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	switch opts.Format {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), closer, nil
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), closer, nil
	default:
		closer.Close()
		return nil, nil, fmt.Errorf("unknown log format: %q", opts.Format)
	}
}
