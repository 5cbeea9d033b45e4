// Package logger builds the process-wide logr.Logger on top of zap.
package logger

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the logging flags.
type Config struct {
	// Verbosity enables logr V-levels up to this value.
	Verbosity int
	// Format is "text" for human-readable console output or "json".
	Format string
}

// AddFlags registers the logging flags on a flag set.
func (c *Config) AddFlags(fs *flag.FlagSet) {
	fs.IntVarP(&c.Verbosity, "verbosity", "v", 0, "log verbosity; higher prints more")
	fs.StringVar(&c.Format, "log-format", "text", "log output format (text or json)")
}

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "ts",
	LevelKey:       "level",
	NameKey:        "logger",
	MessageKey:     "msg",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.LowercaseLevelEncoder,
	EncodeTime:     zapcore.ISO8601TimeEncoder,
	EncodeDuration: zapcore.StringDurationEncoder,
}

// New builds a logger from the config.
func New(cfg Config) (logr.Logger, error) {
	encoding := "console"
	ecfg := encoderConfig
	switch cfg.Format {
	case "", "text":
		ecfg.TimeKey = "" // CLI output; timestamps are noise
	case "json":
		encoding = "json"
	default:
		return logr.Logger{}, errors.Errorf("unknown log format %q", cfg.Format)
	}

	zcfg := zap.Config{
		// zapr maps logr V-levels onto negative zap levels.
		Level:             zap.NewAtomicLevelAt(zapcore.Level(-cfg.Verbosity)),
		Encoding:          encoding,
		DisableStacktrace: true,
		DisableCaller:     true,
		EncoderConfig:     ecfg,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}

	zl, err := zcfg.Build()
	if err != nil {
		return logr.Logger{}, errors.Wrap(err, "build logger")
	}
	return zapr.NewLogger(zl), nil
}
