package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how verbosely the service logs.
type Options struct {
	Level string
	// Pretty switches stdout to the human readable console writer.
	Pretty bool
	// File enables a rotating JSON log file when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds the root logger. Every component derives its own child with
// a "component" field.
func New(opts Options, service string) zerolog.Logger {
	return zerolog.New(Writer(opts, os.Stdout)).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Writer assembles the output sinks for opts on top of stdout.
func Writer(opts Options, stdout io.Writer) io.Writer {
	var console io.Writer = stdout
	if opts.Pretty {
		console = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}
	}

	if strings.TrimSpace(opts.File) == "" {
		return console
	}

	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    positiveOr(opts.MaxSizeMB, 100),
		MaxBackups: positiveOr(opts.MaxBackups, 5),
		MaxAge:     positiveOr(opts.MaxAgeDays, 30),
		Compress:   true,
	}

	return zerolog.MultiLevelWriter(console, file)
}

// ParseLevel falls back to info for unknown or empty levels.
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
