package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Field is an alias so callers never import zap directly.
type Field = zapcore.Field

var (
	String = zap.String
	Int    = zap.Int
	Int64  = zap.Int64
	Bool   = zap.Bool
	Any    = zap.Any
	Error  = zap.Error
)

type LoggerI interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Panic(msg string, fields ...Field)
	Named(name string) LoggerI
}

type loggerImpl struct {
	zap *zap.Logger
}

// NewLogger builds a named zap logger. The debug level uses the
// development encoder, everything else the production JSON encoder.
func NewLogger(namespace, level string) LoggerI {
	var (
		cfg zap.Config
		lvl zapcore.Level
	)

	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}

	return &loggerImpl{zap: l.Named(namespace)}
}

func (l *loggerImpl) Debug(msg string, fields ...Field) { l.zap.Debug(msg, fields...) }
func (l *loggerImpl) Info(msg string, fields ...Field)  { l.zap.Info(msg, fields...) }
func (l *loggerImpl) Warn(msg string, fields ...Field)  { l.zap.Warn(msg, fields...) }
func (l *loggerImpl) Error(msg string, fields ...Field) { l.zap.Error(msg, fields...) }
func (l *loggerImpl) Panic(msg string, fields ...Field) { l.zap.Panic(msg, fields...) }

func (l *loggerImpl) Named(name string) LoggerI {
	return &loggerImpl{zap: l.zap.Named(name)}
}

// Cleanup flushes buffered log entries; call it on shutdown.
func Cleanup(l LoggerI) {
	if impl, ok := l.(*loggerImpl); ok {
		_ = impl.zap.Sync()
	}
}
