// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel string

type LogFormat string

const (
	DebugLevel LogLevel = "DEBUG"
	InfoLevel  LogLevel = "INFO"
	WarnLevel  LogLevel = "WARN"
	ErrorLevel LogLevel = "ERROR"
	// ProductionLevel is an alias for InfoLevel
	ProductionLevel LogLevel = "PRODUCTION"

	// FormatConsole is zap's console encoder
	FormatConsole LogFormat = "CONSOLE"
	// FormatJSON is one JSON object per line
	FormatJSON LogFormat = "JSON"
	// FormatPretty is the operator-facing format, see NewPrettyConsoleEncoder
	FormatPretty LogFormat = "PRETTY"
)

const (
	// EnvLogLevel selects the level of the global logger
	EnvLogLevel = "LOGGING_LEVEL"
	// EnvLogFormat selects the format of the global logger
	EnvLogFormat = "LOGGING_FORMAT"
)

var (
	initOnce    sync.Once
	initialized bool
)

// ParseLevel maps a level name to a zap level. Unknown names fall back to info.
func ParseLevel(level LogLevel) zapcore.Level {
	switch LogLevel(strings.ToUpper(string(level))) {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseFormat maps a format name to a LogFormat, returning def for unknown names
func ParseFormat(format string, def LogFormat) LogFormat {
	switch f := LogFormat(strings.ToUpper(format)); f {
	case FormatConsole, FormatJSON, FormatPretty:
		return f
	default:
		return def
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func encoderConfig(format LogFormat) zapcore.EncoderConfig {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if format == FormatJSON {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg
	}

	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
	}
	cfg.ConsoleSeparator = " | "
	return cfg
}

// NewWithWriter builds a logger writing to w
func NewWithWriter(level LogLevel, format LogFormat, w io.Writer) *zap.Logger {
	cfg := encoderConfig(format)

	var encoder zapcore.Encoder
	switch format {
	case FormatConsole:
		encoder = zapcore.NewConsoleEncoder(cfg)
	case FormatPretty:
		encoder = NewPrettyConsoleEncoder(cfg)
	default:
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), zap.NewAtomicLevelAt(ParseLevel(level)))
	return zap.New(core, zap.AddCaller())
}

// New builds a logger writing to stdout
func New(level LogLevel, format LogFormat) *zap.Logger {
	return NewWithWriter(level, format, os.Stdout)
}

// Initialize sets up the global logger from LOGGING_LEVEL and LOGGING_FORMAT.
// Only the first call has an effect.
func Initialize() {
	initOnce.Do(func() {
		level := LogLevel(getEnv(EnvLogLevel, string(ProductionLevel)))
		format := ParseFormat(getEnv(EnvLogFormat, ""), FormatPretty)
		log := New(level, format)

		log.Info("Logger initialized",
			zap.String("level", string(level)),
			zap.String("format", string(format)))

		zap.ReplaceGlobals(log)
		initialized = true
	})
}

// ReplaceGlobal installs log as the global logger, e.g. a logger wrapped with
// the sentry hook.
func ReplaceGlobal(log *zap.Logger) {
	Initialize()
	zap.ReplaceGlobals(log)
}

func GetLogger() *zap.Logger {
	if !initialized {
		Initialize()
	}
	return zap.L()
}

func Sync() error {
	return zap.L().Sync()
}

// For returns the global logger named after a component
func For(component string) *zap.SugaredLogger {
	if !initialized {
		Initialize()
	}
	return zap.S().Named(component)
}
