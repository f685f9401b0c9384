// Package logger builds the process logger: a console core on stderr, an
// optional rotating file core and optional zapfilter rules on top.
//
// Library packages never log through the global. They take a *zap.Logger in
// their options and fall back to OrNop; only the command wires Named loggers
// into them.
package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"moul.io/zapfilter"
)

// Log is the process logger. It discards everything until Init runs.
var Log = zap.NewNop()

// Rotation bounds the log file kept by lumberjack.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultRotation keeps three compressed 50 MB backups for a week.
func DefaultRotation() Rotation {
	return Rotation{MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 7, Compress: true}
}

// Options selects the cores New builds.
type Options struct {
	Level    string    // debug, info, warn or error; info when empty
	File     string    // rotating log file; none when empty
	Rotation Rotation  // applies when File is set
	Filter   string    // zapfilter rules, e.g. "warn+:* debug:centerline"
	Console  io.Writer // nil disables console output
}

// Init replaces Log with a stderr logger at level, teeing to a rotating file
// when file is set.
func Init(level, file, filter string) error {
	l, err := New(Options{
		Level:    level,
		File:     file,
		Rotation: DefaultRotation(),
		Filter:   filter,
		Console:  os.Stderr,
	})
	if err != nil {
		return err
	}
	Log = l
	return nil
}

// New builds a logger from opts without touching Log.
func New(opts Options) (*zap.Logger, error) {
	lvl, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var cores []zapcore.Core
	if opts.Console != nil {
		enc := encoderConfig(zapcore.TimeEncoderOfLayout("15:04:05"), zapcore.CapitalColorLevelEncoder)
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(opts.Console), lvl))
	}
	if opts.File != "" {
		w := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.Rotation.MaxSizeMB,
			MaxBackups: opts.Rotation.MaxBackups,
			MaxAge:     opts.Rotation.MaxAgeDays,
			Compress:   opts.Rotation.Compress,
			LocalTime:  true,
		}
		enc := encoderConfig(zapcore.ISO8601TimeEncoder, zapcore.CapitalLevelEncoder)
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), lvl))
	}

	core := zapcore.NewTee(cores...)
	if opts.Filter != "" {
		rules, err := zapfilter.ParseRules(opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("parsing log filter %q: %w", opts.Filter, err)
		}
		core = zapfilter.NewFilteringCore(core, rules)
	}
	return zap.New(core, zap.AddCaller()), nil
}

func encoderConfig(timeEnc zapcore.TimeEncoder, levelEnc zapcore.LevelEncoder) zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		CallerKey:        "caller",
		EncodeTime:       timeEnc,
		EncodeLevel:      levelEnc,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	}
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

// Named returns a child of Log for a component.
func Named(component string) *zap.Logger {
	return Log.Named(component)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = Log.Sync()
}
