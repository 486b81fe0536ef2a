package util

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// loggerConfig is the production JSON config with ISO8601 "ts" and upper-case levels
func loggerConfig(verbose bool) zap.Config {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

// NewLogger builds the node logger writing to stdout (debug level when verbose)
func NewLogger(verbose bool) (*zap.Logger, error) {
	return loggerConfig(verbose).Build()
}

// NewLoggerWithFile writes the same stream to stdout and logPath
func NewLoggerWithFile(logPath string, verbose bool) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	cfg := loggerConfig(verbose)
	cfg.OutputPaths = append(cfg.OutputPaths, logPath)
	return cfg.Build()
}
