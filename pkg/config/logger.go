package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	qcerrors "github.com/seisqc/seisqc/pkg/errors"
)

// NewLogger builds the process logger from cfg.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, qcerrors.ConfigParse("logging.level", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch cfg.Format {
	case "", "json":
		zc.Encoding = "json"
	case "console":
		zc.Encoding = "console"
	default:
		return nil, qcerrors.New(qcerrors.CodeConfigInvalid, "unknown log format").
			WithContext("format", cfg.Format)
	}

	return zc.Build(zap.Fields(zap.String("service", "scqc")))
}
