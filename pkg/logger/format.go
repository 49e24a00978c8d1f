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
	"fmt"
	"sort"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var linePool = buffer.NewPool()

// PrettyConsoleEncoder writes one line per entry:
//
//	2006-01-02 15:04:05.000 [INFO]	[PickPlace]	[IDLE] init procedure and waiting manual start! - cycle=...
//
// Fields added with With are kept in a map and printed after the entry's own fields.
type PrettyConsoleEncoder struct {
	*zapcore.MapObjectEncoder
	cfg zapcore.EncoderConfig
}

// NewPrettyConsoleEncoder creates a new PrettyConsoleEncoder instance.
func NewPrettyConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &PrettyConsoleEncoder{
		MapObjectEncoder: zapcore.NewMapObjectEncoder(),
		cfg:              cfg,
	}
}

// Clone implements zapcore.Encoder
func (e *PrettyConsoleEncoder) Clone() zapcore.Encoder {
	clone := zapcore.NewMapObjectEncoder()
	for k, v := range e.Fields {
		clone.Fields[k] = v
	}
	return &PrettyConsoleEncoder{MapObjectEncoder: clone, cfg: e.cfg}
}

// EncodeEntry implements zapcore.Encoder
func (e *PrettyConsoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := linePool.Get()

	if !entry.Time.IsZero() {
		line.AppendString(entry.Time.Format("2006-01-02 15:04:05.000"))
		line.AppendByte(' ')
	}

	line.AppendByte('[')
	line.AppendString(entry.Level.CapitalString())
	line.AppendString("]\t")

	if entry.LoggerName != "" {
		line.AppendByte('[')
		line.AppendString(entry.LoggerName)
		line.AppendString("]\t")
	}

	line.AppendString(entry.Message)

	local := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(local)
	}
	appendFields(line, local.Fields, e.Fields)

	if entry.Caller.Defined && entry.Level >= zapcore.WarnLevel {
		line.AppendString("\t(")
		line.AppendString(entry.Caller.TrimmedPath())
		line.AppendByte(')')
	}

	if entry.Stack != "" && e.cfg.StacktraceKey != "" {
		line.AppendByte('\n')
		line.AppendString(entry.Stack)
	}

	if e.cfg.LineEnding == "" {
		line.AppendString(zapcore.DefaultLineEnding)
	} else {
		line.AppendString(e.cfg.LineEnding)
	}
	return line, nil
}

func appendFields(line *buffer.Buffer, groups ...map[string]interface{}) {
	first := true
	for _, group := range groups {
		keys := make([]string, 0, len(group))
		for k := range group {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if first {
				line.AppendString(" - ")
				first = false
			} else {
				line.AppendString(", ")
			}
			line.AppendString(k)
			line.AppendByte('=')
			line.AppendString(fmt.Sprintf("%v", group[k]))
		}
	}
}
