// Package logging builds the zap loggers shared by both binaries,
// grounded on DimaJoyti-go-coffee/cmd/gocoffee-cli/main.go's
// initLogger: development config (console, colorized) below "info",
// production config (JSON) at "info" and above.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger for the given level name ("debug",
// "info", "warn", "error"; anything else defaults to "info").
func New(level string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	lvl := parseLevel(level)

	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
