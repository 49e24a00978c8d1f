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


package logger_test

import (
	"bytes"
	"strings"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/logger"
)

var _ = Describe("Logger", func() {
	DescribeTable("ParseLevel",
		func(name string, want zapcore.Level) {
			Expect(logger.ParseLevel(logger.LogLevel(name))).To(Equal(want))
		},
		Entry("debug", "DEBUG", zapcore.DebugLevel),
		Entry("lower case", "warn", zapcore.WarnLevel),
		Entry("error", "ERROR", zapcore.ErrorLevel),
		Entry("production", "PRODUCTION", zapcore.InfoLevel),
		Entry("unknown", "LOUD", zapcore.InfoLevel),
	)

	DescribeTable("ParseFormat",
		func(name string, want logger.LogFormat) {
			Expect(logger.ParseFormat(name, logger.FormatPretty)).To(Equal(want))
		},
		Entry("json", "json", logger.FormatJSON),
		Entry("console", "CONSOLE", logger.FormatConsole),
		Entry("empty", "", logger.FormatPretty),
		Entry("unknown", "xml", logger.FormatPretty),
	)

	Context("pretty format", func() {
		var (
			buf bytes.Buffer
			log *zap.Logger
		)

		BeforeEach(func() {
			buf.Reset()
			log = logger.NewWithWriter(logger.DebugLevel, logger.FormatPretty, &buf).Named(logger.ComponentController)
		})

		It("prints the level, component and sorted fields", func() {
			log.With(zap.String("instance", "cell-1")).Info("[IDLE] waiting", zap.Int("code", 3), zap.String("cycle", "c1"))

			line := buf.String()
			Expect(line).To(ContainSubstring("[INFO]\t[PickPlace]\t[IDLE] waiting - code=3, cycle=c1, instance=cell-1\n"))
			Expect(line).NotTo(ContainSubstring("logger_test.go"))
		})

		It("adds the caller from warn upwards", func() {
			log.Warn("[PANIC] Ignored start event")

			Expect(buf.String()).To(ContainSubstring("[WARN]\t[PickPlace]\t[PANIC] Ignored start event\t(logger/logger_test.go:"))
		})

		It("keeps context fields of one child away from its siblings", func() {
			log.With(zap.String("a", "1")).Info("first")
			log.With(zap.String("b", "2")).Info("second")

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			Expect(lines).To(HaveLen(2))
			Expect(lines[0]).To(HaveSuffix("first - a=1"))
			Expect(lines[1]).To(HaveSuffix("second - b=2"))
		})

		It("respects the level", func() {
			quiet := logger.NewWithWriter(logger.ErrorLevel, logger.FormatPretty, &buf)
			quiet.Warn("dropped")
			Expect(buf.Len()).To(BeZero())
		})
	})

	It("writes one JSON object per entry", func() {
		var buf bytes.Buffer
		log := logger.NewWithWriter(logger.InfoLevel, logger.FormatJSON, &buf).Named(logger.ComponentWatchdog)
		log.Info("stall", zap.Int("errorCode", 11))

		var entry map[string]interface{}
		Expect(json.Unmarshal(buf.Bytes(), &entry)).To(Succeed())
		Expect(entry).To(HaveKeyWithValue("level", "INFO"))
		Expect(entry).To(HaveKeyWithValue("component", "Watchdog"))
		Expect(entry).To(HaveKeyWithValue("msg", "stall"))
		Expect(entry).To(HaveKeyWithValue("errorCode", BeNumerically("==", 11)))
	})
})
