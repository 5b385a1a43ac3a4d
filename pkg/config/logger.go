package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger contains node logger configuration.
type Logger struct {
	LogEncoding  string `yaml:"LogEncoding"`
	LogLevel     string `yaml:"LogLevel"`
	LogPath      string `yaml:"LogPath"`
	LogTimestamp *bool  `yaml:"LogTimestamp,omitempty"`
}

// Validate returns an error if Logger configuration is not valid.
func (l Logger) Validate() error {
	if len(l.LogEncoding) > 0 && l.LogEncoding != "console" && l.LogEncoding != "json" {
		return fmt.Errorf("invalid LogEncoding: %s", l.LogEncoding)
	}
	if len(l.LogLevel) > 0 {
		if _, err := zapcore.ParseLevel(l.LogLevel); err != nil {
			return fmt.Errorf("invalid LogLevel: %w", err)
		}
	}
	return nil
}

// NewLogger builds the zap.Logger threaded from net.Net into session
// construction and from there into the reject protocol. Encoding and level default to
// console/info; LogPath, if set, directs output to a file instead of
// stderr, creating its parent directory as needed.
func (l Logger) NewLogger() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if len(l.LogLevel) > 0 {
		parsed, err := zapcore.ParseLevel(l.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("log setting: %w", err)
		}
		level = parsed
	}
	encoding := "console"
	if len(l.LogEncoding) > 0 {
		encoding = l.LogEncoding
	}

	cc := zap.NewProductionConfig()
	cc.DisableCaller = true
	cc.DisableStacktrace = true
	cc.Encoding = encoding
	cc.Level = zap.NewAtomicLevelAt(level)
	cc.Sampling = nil
	cc.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if l.LogTimestamp != nil && *l.LogTimestamp {
		cc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cc.EncoderConfig.EncodeTime = func(_ time.Time, _ zapcore.PrimitiveArrayEncoder) {}
	}

	if l.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(l.LogPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		cc.OutputPaths = []string{l.LogPath}
		cc.ErrorOutputPaths = []string{l.LogPath}
	}

	return cc.Build()
}
