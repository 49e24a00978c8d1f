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

package sentry

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap/zapcore"
)

// fingerprintKeys are the field keys that affect grouping
var fingerprintKeys = map[string]bool{"operation": true, "fsm_type": true, "state": true}

// SentryHook wraps a zapcore.Core and captures Error and above to sentry.
type SentryHook struct {
	zapcore.Core
	capture func(entry zapcore.Entry, tags map[string]string)
	// context holds the fields added with With, the wrapped core keeps its own copy
	context []zapcore.Field
}

// NewSentryHook creates a new SentryHook wrapping the given core
func NewSentryHook(core zapcore.Core) *SentryHook {
	return &SentryHook{Core: core, capture: captureMessage}
}

// With implements zapcore.Core
func (h *SentryHook) With(fields []zapcore.Field) zapcore.Core {
	context := make([]zapcore.Field, 0, len(h.context)+len(fields))
	context = append(context, h.context...)
	context = append(context, fields...)
	return &SentryHook{Core: h.Core.With(fields), capture: h.capture, context: context}
}

// Check implements zapcore.Core
func (h *SentryHook) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if h.Enabled(entry.Level) {
		return ce.AddCore(entry, h)
	}
	return ce
}

// Write implements zapcore.Core
func (h *SentryHook) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if entry.Level >= zapcore.ErrorLevel {
		tags := fieldsAsTags(append(append([]zapcore.Field(nil), h.context...), fields...))
		if entry.LoggerName != "" {
			tags["component"] = entry.LoggerName
		}
		go h.capture(entry, tags)
	}
	return h.Core.Write(entry, fields)
}

func captureMessage(entry zapcore.Entry, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(zapLevelToSentry(entry.Level))

		fingerprint := []string{"{{ default }}"}
		for k, v := range tags {
			scope.SetTag(k, v)
			if fingerprintKeys[k] {
				fingerprint = append(fingerprint, k+": "+v)
			}
		}
		scope.SetFingerprint(fingerprint)

		sentry.CaptureMessage(entry.Message)
	})
}

func fieldsAsTags(fields []zapcore.Field) map[string]string {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}

	tags := make(map[string]string, len(enc.Fields))
	for k, v := range enc.Fields {
		tags[k] = fmt.Sprintf("%v", v)
	}
	return tags
}

func zapLevelToSentry(level zapcore.Level) sentry.Level {
	switch level {
	case zapcore.DebugLevel:
		return sentry.LevelDebug
	case zapcore.InfoLevel:
		return sentry.LevelInfo
	case zapcore.WarnLevel:
		return sentry.LevelWarning
	case zapcore.ErrorLevel:
		return sentry.LevelError
	default:
		return sentry.LevelFatal
	}
}
