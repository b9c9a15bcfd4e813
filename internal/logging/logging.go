// Package logging builds the slog logger used across churnwatch on top of a
// zap core.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config selects the level and encoding.
type Config struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// Validate checks the level and format names.
func (c Config) Validate() error {
	if _, err := c.level(); err != nil {
		return err
	}
	_, err := c.encoder()
	return err
}

// New returns a logger writing to w and a function flushing buffered entries.
func New(cfg Config, w io.Writer) (*slog.Logger, func() error, error) {
	level, err := cfg.level()
	if err != nil {
		return nil, nil, err
	}
	enc, err := cfg.encoder()
	if err != nil {
		return nil, nil, err
	}

	ws := zapcore.AddSync(w)
	core := zapcore.NewCore(enc, ws, level)
	return slog.New(zapslog.NewHandler(core)), ws.Sync, nil
}

func (c Config) level() (zapcore.Level, error) {
	if c.Level == "" {
		return zapcore.WarnLevel, nil
	}
	l, err := zapcore.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	return l, nil
}

func (c Config) encoder() (zapcore.Encoder, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	switch strings.ToLower(c.Format) {
	case "", FormatConsole:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg), nil
	case FormatJSON:
		return zapcore.NewJSONEncoder(encCfg), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (expected json or console)", c.Format)
	}
}
