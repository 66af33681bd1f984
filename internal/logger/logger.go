// Package logger builds the zap loggers used across the module. Logs go to
// stderr so command output on stdout stays machine readable.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// config holds configuration options for the logger.
type config struct {
	level  string // the minimum log level (debug, info, warn, error)
	format string // json or console
	out    io.Writer
}

// Option configures a logger built by New.
type Option func(*config)

// WithLevel sets the minimum log level.
func WithLevel(l string) Option {
	return func(c *config) {
		if l != "" {
			c.level = l
		}
	}
}

// WithFormat selects the encoder: "json" (default) or "console".
func WithFormat(f string) Option {
	return func(c *config) {
		if f != "" {
			c.format = f
		}
	}
}

// WithOutput redirects log output, mostly for tests.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		c.out = w
	}
}

// New returns a logger writing JSON to stderr at info level unless told otherwise.
func New(opts ...Option) (*zap.Logger, error) {
	cfg := config{level: "info", format: "json", out: os.Stderr}
	for _, opt := range opts {
		opt(&cfg)
	}

	level, err := zapcore.ParseLevel(cfg.level)
	if err != nil {
		return nil, err
	}

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.format) {
	case "json":
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	case "console":
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.format)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(cfg.out), level)
	return zap.New(core), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger { return zap.NewNop() }
