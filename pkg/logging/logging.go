package logging

import (
	"strings"

	"github.com/canopy-network/balancex/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level, encoding and sinks of the process logger.
type Config struct {
	Level       string   // debug, info, warn, error
	Encoding    string   // json or console
	OutputPaths []string // zap sink URLs, e.g. "stdout" or a file path
}

// ConfigFromEnv reads LOG_LEVEL, LOG_ENCODING and LOG_OUTPUT (comma separated sinks).
func ConfigFromEnv() Config {
	return Config{
		Level:       utils.Env("LOG_LEVEL", "info"),
		Encoding:    utils.Env("LOG_ENCODING", "json"),
		OutputPaths: strings.Split(utils.Env("LOG_OUTPUT", "stdout"), ","),
	}
}

// New builds a zap logger from cfg. Callers pass the result down explicitly;
// nothing in this module logs through a package-level logger.
func New(cfg Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Encoding != "" {
		zcfg.Encoding = cfg.Encoding
	}
	switch strings.ToLower(cfg.Level) {
	case "debug":
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		zcfg.Development = true
	case "warn":
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zcfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zcfg.OutputPaths = []string{"stdout"}
	if paths := nonEmpty(cfg.OutputPaths); len(paths) > 0 {
		zcfg.OutputPaths = paths
	}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
