package logger

import (
	"codequiz-publisher/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Module = fx.Module("logger", fx.Provide(New))

// New builds the process logger: human-readable in development, JSON on
// stdout in production. It is installed as the zap global so the rest of
// the pipeline logs through zap.L().
func New(cfg *config.Config) *zap.Logger {
	log := zap.Must(zap.NewDevelopment())

	if cfg.AppEnv == "production" {
		zc := zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.EncoderConfig.LevelKey = "severity"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zc.OutputPaths = []string{"stdout"}
		zc.ErrorOutputPaths = []string{"stderr"}
		log = zap.Must(zc.Build())
	}

	log = log.With(
		zap.String("env", cfg.AppEnv),
		zap.String("service", cfg.AppName),
	)
	zap.ReplaceGlobals(log)
	return log
}
