// Package log provides structured logging for offscan using zap.
package log

import (
	"strconv"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with offscan-specific helpers.
type Logger struct {
	*zap.Logger
}

var (
	// L is the global logger instance. It is a no-op until Init is called.
	L    = NewNop()
	once sync.Once
)

// Init initializes the global logger with the given configuration.
// Safe to call multiple times; only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Attempt logs one strategy attempt for a target.
func (l *Logger) Attempt(addr uint64, method, target, detail string) {
	l.Debug("attempt",
		Method(method),
		Target(target),
		zap.String("detail", detail),
		Addr(addr),
	)
}

// Resolved logs a target that a strategy resolved.
func (l *Logger) Resolved(target, method string, addr uint64, confidence float64) {
	l.Debug("resolved",
		Target(target),
		Method(method),
		Addr(addr),
		Confidence(confidence),
	)
}

// Dropped logs a result removed by cross-validation.
func (l *Logger) Dropped(target string, addr uint64, confidence float64) {
	l.Info("dropped",
		Target(target),
		Addr(addr),
		Confidence(confidence),
	)
}

// WithCategory returns a logger with the category field preset.
func (l *Logger) WithCategory(category string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("cat", category))}
}

// Hex formats a uint64 as hex string for logging.
func Hex(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}

// Field helpers for common patterns.

// Addr creates an address field.
func Addr(addr uint64) zap.Field {
	return zap.String("addr", Hex(addr))
}

// Size creates a size field.
func Size(size uint64) zap.Field {
	return zap.Uint64("size", size)
}

// Ptr creates a named address field.
func Ptr(name string, ptr uint64) zap.Field {
	return zap.String(name, Hex(ptr))
}

// Target creates a target name field.
func Target(name string) zap.Field {
	return zap.String("target", name)
}

// Method creates a strategy method field.
func Method(m string) zap.Field {
	return zap.String("method", m)
}

// Confidence creates a confidence field.
func Confidence(c float64) zap.Field {
	return zap.Float64("conf", c)
}
