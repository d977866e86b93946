// Package logger builds the zap logger shared by all feeder components.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels accepted by New.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// Logger wraps zap's SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
}

// defaultLevel is used when an unknown level string is provided.
const defaultLevel = zapcore.DebugLevel

func toZapLevel(level string) zapcore.Level {
	switch level {
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return defaultLevel
	}
}

// New returns a console logger writing to w (stdout when w is nil).
func New(level string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(zapcore.AddSync(w)),
		zap.NewAtomicLevelAt(toZapLevel(level)),
	)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(name)}
}
