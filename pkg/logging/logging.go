package logging

import (
	"github.com/canopy-network/ytwarehouse/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger from LOG_LEVEL and LOG_ENCODING, writing to stdout.
func New() (*zap.Logger, error) {
	return NewTo("stdout")
}

// NewTo is New with explicit zap output paths, such as "stderr" or a file.
func NewTo(outputs ...string) (*zap.Logger, error) {
	return NewWith(utils.Env("LOG_LEVEL", "info"), utils.Env("LOG_ENCODING", "json"), outputs...)
}

// NewWith builds a logger for an explicit level and encoding ("json" or
// "console"). Without outputs it writes to stdout.
func NewWith(level, encoding string, outputs ...string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = encoding
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	cfg.OutputPaths = outputs
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if encoding == "console" {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l, nil
}
