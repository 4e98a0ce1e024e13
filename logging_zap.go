// logging_zap.go: zap backed Logger with rotating file output
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	timecache "github.com/agilira/go-timecache"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZapLoggerConfig configures NewZapLogger.
type ZapLoggerConfig struct {
	// FilePath is the log file. Empty disables file output.
	FilePath string

	// Console mirrors entries to stderr.
	Console bool

	// Debug enables debug level entries.
	Debug bool

	// Rotation limits for the file sink.
	MaxSizeMB  int
	MaxBackups int
}

// ZapLogger adapts *zap.SugaredLogger to Logger.
//
// Entries are stamped with the time elapsed since the logger was created,
// formatted as [m:s:ms], which is what players attach to bug reports.
type ZapLogger struct {
	sugar *zap.SugaredLogger
	file  *lumberjack.Logger
	once  *sync.Once
}

// NewZapLogger builds a logger from cfg.
func NewZapLogger(cfg ZapLoggerConfig) (*ZapLogger, error) {
	level := zapcore.InfoLevel
	if cfg.Debug {
		level = zapcore.DebugLevel
	}

	start := timecache.CachedTime()
	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "T",
		LevelKey:         "L",
		MessageKey:       "M",
		NameKey:          "N",
		EncodeTime:       elapsedTimeEncoder(start),
		EncodeLevel:      bracketLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	})

	var cores []zapcore.Core
	var file *lumberjack.Logger
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0750); err != nil {
			return nil, NewDirectoryError(filepath.Dir(cfg.FilePath), err)
		}
		file = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(file), level))
	}
	if cfg.Console {
		cores = append(cores, zapcore.NewCore(encoder.Clone(), zapcore.Lock(os.Stderr), level))
	}
	if len(cores) == 0 {
		cores = append(cores, zapcore.NewNopCore())
	}

	base := zap.New(zapcore.NewTee(cores...), zap.WithClock(cachedClock{}))
	return &ZapLogger{sugar: base.Sugar(), file: file, once: &sync.Once{}}, nil
}

// Debug implements Logger.
func (z *ZapLogger) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }

// Info implements Logger.
func (z *ZapLogger) Info(msg string, args ...any) { z.sugar.Infow(msg, args...) }

// Warn implements Logger.
func (z *ZapLogger) Warn(msg string, args ...any) { z.sugar.Warnw(msg, args...) }

// Error implements Logger.
func (z *ZapLogger) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }

// With implements Logger. The child shares the parent's sinks.
func (z *ZapLogger) With(args ...any) Logger {
	return &ZapLogger{sugar: z.sugar.With(args...), file: z.file, once: z.once}
}

// Close flushes buffered entries and releases the log file. Safe to call twice.
func (z *ZapLogger) Close() error {
	var err error
	z.once.Do(func() {
		_ = z.sugar.Sync()
		if z.file != nil {
			err = z.file.Close()
		}
	})
	return err
}

// FormatElapsed renders d as [minutes:seconds:milliseconds].
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	millis := int((d % time.Second) / time.Millisecond)
	return fmt.Sprintf("[%d:%d:%d]", minutes, seconds, millis)
}

func elapsedTimeEncoder(start time.Time) zapcore.TimeEncoder {
	return func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(FormatElapsed(t.Sub(start)))
	}
}

func bracketLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

// cachedClock feeds zap entry timestamps from go-timecache.
type cachedClock struct{}

func (cachedClock) Now() time.Time { return timecache.CachedTime() }

func (cachedClock) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
