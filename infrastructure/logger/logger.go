package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"baletrack/config"
)

// New builds a console development logger, or a JSON production logger when
// cfg.Encoding is "json".
func New(cfg config.LoggerConfig) (*zap.Logger, error) {
	var loggerConfig zap.Config
	if strings.EqualFold(cfg.Encoding, "json") {
		loggerConfig = zap.NewProductionConfig()
	} else {
		loggerConfig = zap.NewDevelopmentConfig()
	}
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		loggerConfig.Level = zap.NewAtomicLevelAt(level)
	}
	loggerConfig.DisableCaller = cfg.DisableCaller
	loggerConfig.DisableStacktrace = cfg.DisableStacktrace

	return loggerConfig.Build()
}
