// Package logging builds the process logger and hands out component entries.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

// Options configures the process logger
type Options struct {
	Level  string
	Format string // text or json
	Output io.Writer
}

// New builds a logger from options
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()
	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	} else {
		logger.SetOutput(os.Stderr)
	}

	level := strings.TrimSpace(opts.Level)
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log format %q: expected text or json", opts.Format)
	}
	return logger, nil
}

// Nop returns an entry that discards everything
func Nop() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

// OrNop returns log, or a discarding entry when log is nil
func OrNop(log *logrus.Entry) *logrus.Entry {
	if log == nil {
		return Nop()
	}
	return log
}

// WithContext stores an entry on ctx
func WithContext(ctx context.Context, log *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext returns the entry stored on ctx, or a discarding entry
func FromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return Nop()
	}
	switch typed := ctx.Value(ctxKey{}).(type) {
	case *logrus.Entry:
		return typed
	case *logrus.Logger:
		return logrus.NewEntry(typed)
	default:
		return Nop()
	}
}
