// Package logging wraps zap behind a small structured-logging surface shared
// by every relay component. A process-wide logger is installed once at
// startup and retrieved with L().
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalMu     sync.RWMutex
	globalLogger = newNopLogger()
)

// Field is a structured logging attribute.
type Field = zap.Field

// Common field constructors, re-exported so callers never import zap directly.
var (
	String   = zap.String
	Int      = zap.Int
	Int32    = zap.Int32
	Uint32   = zap.Uint32
	Int64    = zap.Int64
	Bool     = zap.Bool
	Float64  = zap.Float64
	Duration = zap.Duration
	Error    = zap.Error
	Time     = zap.Time
)

// Options describe how the process logger writes its output.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// FilePath, when set, mirrors log output into a size-rotated file.
	FilePath string
	// MaxSizeMB caps each rotated file; zero uses the rotation default.
	MaxSizeMB int
	// MaxBackups bounds the number of rotated files kept on disk.
	MaxBackups int
	// MaxAgeDays expires rotated files by age.
	MaxAgeDays int
	// Console switches stderr output to a human-readable encoder.
	Console bool
}

// Logger is the concrete logger handed to components.
type Logger struct {
	zl *zap.Logger
}

func parseLevel(raw string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", raw)
	}
}

// New builds a logger from the supplied options.
func New(opts Options) (*Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var consoleEnc zapcore.Encoder
	if opts.Console {
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		consoleEnc = zapcore.NewConsoleEncoder(devCfg)
	} else {
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), level),
	}
	if opts.FilePath != "" {
		//1.- File output rotates by size so long-running servers never fill a disk.
		sink := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(sink), level))
	}

	zl := zap.New(zapcore.NewTee(cores...))
	return &Logger{zl: zl}, nil
}

func newNopLogger() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// L returns the process-wide logger.
func L() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// ReplaceGlobals installs the supplied logger as the process-wide logger and
// returns a restore function, mirroring zap's own API.
func ReplaceGlobals(logger *Logger) func() {
	globalMu.Lock()
	previous := globalLogger
	if logger != nil {
		globalLogger = logger
	}
	globalMu.Unlock()
	return func() {
		globalMu.Lock()
		globalLogger = previous
		globalMu.Unlock()
	}
}

// With returns a child logger carrying the supplied fields on every entry.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil {
		return newNopLogger()
	}
	return &Logger{zl: l.zl.With(fields...)}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...Field) {
	if l != nil {
		l.zl.Debug(msg, fields...)
	}
}

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...Field) {
	if l != nil {
		l.zl.Info(msg, fields...)
	}
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...Field) {
	if l != nil {
		l.zl.Warn(msg, fields...)
	}
}

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...Field) {
	if l != nil {
		l.zl.Error(msg, fields...)
	}
}

// Fatal logs at fatal level and exits the process.
func (l *Logger) Fatal(msg string, fields ...Field) {
	if l != nil {
		l.zl.Fatal(msg, fields...)
	}
}

// Sync flushes buffered entries. Safe to call on shutdown paths.
func (l *Logger) Sync() {
	if l != nil {
		_ = l.zl.Sync()
	}
}

// NewTestLogger returns a development logger suitable for unit tests.
func NewTestLogger() *Logger {
	zl, err := zap.NewDevelopment()
	if err != nil {
		return newNopLogger()
	}
	return &Logger{zl: zl}
}
