// Copyright 2025 The Fedra Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides a structured logging facade backed by zap. Loggers
// carry key/value context and can be embedded in a context.Context.
package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fedra-project/fedra/pkg/private/serrors"
)

// Level is the log level type used throughout the facade.
type Level = zapcore.Level

// Available log levels.
const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	ErrorLevel = zapcore.ErrorLevel
)

// Config configures the process-wide logger.
type Config struct {
	// Level is the minimum enabled level: debug, info or error. Empty
	// defaults to info.
	Level string `toml:"level,omitempty"`
	// Format is either "human" or "json". Empty defaults to human.
	Format string `toml:"format,omitempty"`
	// DisableCaller stops annotating logs with the calling function's file
	// name and line number.
	DisableCaller bool `toml:"disable_caller,omitempty"`
}

// InitDefaults populates unset fields with default values.
func (c *Config) InitDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "human"
	}
}

// Setup configures the process-wide logger. It must be called before the
// first log entry is written, and only once.
func Setup(cfg Config) error {
	cfg.InitDefaults()
	zCfg, err := zapConfig(cfg)
	if err != nil {
		return err
	}
	logger, err := zCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return serrors.Wrap("creating logger", err)
	}
	zap.ReplaceGlobals(logger)
	return nil
}

func zapConfig(cfg Config) (zap.Config, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return zap.Config{}, serrors.New("unsupported log level", "level", cfg.Level)
	}
	encoding := "console"
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	if strings.EqualFold(cfg.Format, "json") {
		encoding = "json"
		encoderCfg = zap.NewProductionEncoderConfig()
	}
	return zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		DisableCaller:     cfg.DisableCaller,
		DisableStacktrace: true,
		Encoding:          encoding,
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}, nil
}

// Logger is the interface all packages log against.
type Logger interface {
	// New returns a child logger with the given key/value context attached
	// to every entry.
	New(ctx ...any) Logger
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Enabled(lvl Level) bool
}

type logger struct {
	logger *zap.Logger
}

// Root returns the root logger. It is guaranteed to never return nil.
func Root() Logger {
	return &logger{logger: zap.L()}
}

// New creates a logger with the given context attached to the root logger.
func New(ctx ...any) Logger {
	return Root().New(ctx...)
}

// Discard returns a logger that drops all entries.
func Discard() Logger {
	return &logger{logger: zap.NewNop()}
}

func (l *logger) New(ctx ...any) Logger {
	return &logger{logger: l.logger.With(convertCtx(ctx)...)}
}

func (l *logger) Debug(msg string, ctx ...any) {
	l.logger.Debug(msg, convertCtx(ctx)...)
}

func (l *logger) Info(msg string, ctx ...any) {
	l.logger.Info(msg, convertCtx(ctx)...)
}

func (l *logger) Error(msg string, ctx ...any) {
	l.logger.Error(msg, convertCtx(ctx)...)
}

func (l *logger) Enabled(lvl Level) bool {
	return l.logger.Core().Enabled(lvl)
}

// Debug logs at debug level on the root logger.
func Debug(msg string, ctx ...any) {
	Root().Debug(msg, ctx...)
}

// Info logs at info level on the root logger.
func Info(msg string, ctx ...any) {
	Root().Info(msg, ctx...)
}

// Error logs at error level on the root logger.
func Error(msg string, ctx ...any) {
	Root().Error(msg, ctx...)
}

// Flush writes all buffered log entries.
func Flush() {
	_ = zap.L().Sync()
}

// HandlePanic catches panics and logs them before re-raising. Deferred at
// the top of every goroutine that must not take the process down silently.
func HandlePanic() {
	if msg := recover(); msg != nil {
		zap.L().Error("Panic", zap.Any("msg", msg), zap.Stack("stack"))
		_ = zap.L().Sync()
		panic(msg)
	}
}

func convertCtx(ctx []any) []zap.Field {
	fields := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(ctx[i]), ctx[i+1]))
	}
	return fields
}
