// Package zaplog is a structured JSON logging backend built on zap, meant for
// production deployments where logs are shipped to an aggregator.
package zaplog

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ZapLogger struct {
	logger *zap.SugaredLogger
}

type ZapLoggerParams struct {
	Debug   bool
	Service string
	// Writer defaults to stdout.
	Writer io.Writer
}

func NewZapLogger(params ZapLoggerParams) *ZapLogger {
	level := zapcore.InfoLevel
	if params.Debug {
		level = zapcore.DebugLevel
	}
	w := params.Writer
	if w == nil {
		w = os.Stdout
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(level),
	)

	l := zap.New(core)
	if params.Service != "" {
		l = l.With(zap.String("service", params.Service))
	}
	return &ZapLogger{logger: l.Sugar()}
}

func (z *ZapLogger) Log(message string, keyvals ...any) {
	z.logger.Infow(message, keyvals...)
}

func (z *ZapLogger) Debug(message string, keyvals ...any) {
	z.logger.Debugw(message, keyvals...)
}

func (z *ZapLogger) Info(message string, keyvals ...any) {
	z.logger.Infow(message, keyvals...)
}

func (z *ZapLogger) Warn(message string, keyvals ...any) {
	z.logger.Warnw(message, keyvals...)
}

func (z *ZapLogger) Error(message string, keyvals ...any) {
	z.logger.Errorw(message, keyvals...)
}

func (z *ZapLogger) Fatal(message string, keyvals ...any) {
	z.logger.Fatalw(message, keyvals...)
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	return z.logger.Sync()
}
