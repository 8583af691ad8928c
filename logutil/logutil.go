package logutil

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once   sync.Once
	logger *zap.Logger
)

// InitLogger configures the process-wide logger. Analysis output goes
// to stdout, so the log writes to stderr to keep exports pipeable.
func InitLogger(verbose bool) {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.OutputPaths = []string{"stderr"}
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		} else {
			cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		}

		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	})
}

// GetLogger returns the process-wide logger, initializing a quiet one
// if InitLogger was never called.
func GetLogger() *zap.Logger {
	if logger == nil {
		InitLogger(false)
	}
	return logger
}
