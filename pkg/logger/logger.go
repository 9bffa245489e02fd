package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig controls how the process logger is built.
type LoggerConfig struct {
	// Debug enables development encoding and debug-level output.
	Debug bool
}

// NewLogger builds the shared zap logger. Production config emits JSON at
// info level; Debug switches to the console encoder at debug level.
func NewLogger(cfg *LoggerConfig) (*zap.Logger, error) {
	if cfg == nil {
		cfg = &LoggerConfig{}
	}

	if cfg.Debug {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return c.Build()
	}

	c := zap.NewProductionConfig()
	c.EncoderConfig.TimeKey = "ts"
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return c.Build()
}

// NewNopLogger returns a logger that discards everything. Handy for tests
// that do not assert on log output.
func NewNopLogger() *zap.Logger {
	return zap.NewNop()
}
