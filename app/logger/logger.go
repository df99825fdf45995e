package logger

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level     string
	Output    string // stdout (default) or file
	FilePath  string
	MaxSizeMB int
	MaxFiles  int
}

type contextKey struct{}

// New creates a JSON zerolog.Logger writing to stdout. Invalid levels fall back to info.
func New(level string) zerolog.Logger {
	return NewFromConfig(Config{Level: level})
}

// NewFromConfig creates a logger writing to stdout or to a rotating file.
func NewFromConfig(cfg Config) zerolog.Logger {
	return newWithWriter(cfg.Level, writerFor(cfg))
}

func newWithWriter(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

func writerFor(cfg Config) io.Writer {
	if cfg.Output != "file" || cfg.FilePath == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		Compress:   true,
	}
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, log)
}

// FromContext returns the logger stored in ctx, or a disabled logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if log, ok := ctx.Value(contextKey{}).(zerolog.Logger); ok {
		return &log
	}
	nop := zerolog.Nop()
	return &nop
}
