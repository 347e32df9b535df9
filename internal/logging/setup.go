// Package logging builds the zerolog logger shared by every sqlrunner component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sqlrunner/internal/config"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options tweak Setup for the current process mode.
type Options struct {
	// Quiet drops the console writer. The MCP stdio transport owns stdout/stderr.
	Quiet bool
	// Console overrides the console destination (defaults to os.Stderr).
	Console io.Writer
}

// Setup returns a logger wired to the writers named in cfg. The returned closer
// flushes and releases the rotating log file.
func Setup(cfg config.ServerConfig, opts Options) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if cfg.HasWriter("console") && !opts.Quiet {
		out := opts.Console
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	if cfg.HasWriter("file") && cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		writers = append(writers, rotator)
		closer = rotator
	}

	if len(writers) == 0 {
		return zerolog.Nop(), closer, nil
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("app", cfg.Name).
		Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
