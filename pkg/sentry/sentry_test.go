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
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var _ = Describe("Sentry", func() {
	Describe("getMeaningfulErrorTitle", func() {
		It("cuts the message at the first separator", func() {
			Expect(getMeaningfulErrorTitle(errors.New("recovery routine failed: motor stalled"))).To(Equal("recovery routine failed"))
		})

		It("limits the length of the title", func() {
			long := make([]byte, 150)
			for i := range long {
				long[i] = 'x'
			}
			title := getMeaningfulErrorTitle(errors.New(string(long)))
			Expect(title).To(HaveLen(100))
			Expect(title).To(HaveSuffix("..."))
		})
	})

	Describe("shouldSend", func() {
		AfterEach(func() {
			debounceMu.Lock()
			debounce = true
			recentlySent = newRecentlySent()
			debounceMu.Unlock()
		})

		It("drops a repeated title while debouncing", func() {
			Expect(shouldSend("hard fault")).To(BeTrue())
			Expect(shouldSend("hard fault")).To(BeFalse())
			Expect(shouldSend("other fault")).To(BeTrue())
		})

		It("sends everything without debouncing", func() {
			debounceMu.Lock()
			debounce = false
			debounceMu.Unlock()

			Expect(shouldSend("hard fault")).To(BeTrue())
			Expect(shouldSend("hard fault")).To(BeTrue())
		})
	})

	Describe("InitSentry", func() {
		It("stays disabled for development builds", func() {
			Expect(InitSentry(Options{DSN: "https://key@sentry.invalid/1", AppVersion: DefaultAppVersion})).To(BeFalse())
		})

		It("stays disabled without a DSN", func() {
			Expect(InitSentry(Options{AppVersion: "1.2.3", Debounce: true})).To(BeFalse())
		})
	})

	Describe("ReportFSMWarningf", func() {
		It("logs the issue at warning level", func() {
			core, logs := observer.New(zapcore.DebugLevel)

			ReportFSMWarningf(zap.New(core).Sugar(), "cell-1", "PickPlaceController", "hard_fault", "fault %d", 20)

			Expect(logs.FilterMessage("fault 20").All()).To(HaveLen(1))
			Expect(logs.All()[0].Level).To(Equal(zapcore.WarnLevel))
		})
	})

	Describe("SentryHook", func() {
		var (
			mu       sync.Mutex
			captured []map[string]string
			log      *zap.Logger
		)

		BeforeEach(func() {
			captured = nil
			core, _ := observer.New(zapcore.DebugLevel)
			hook := NewSentryHook(core)
			hook.capture = func(entry zapcore.Entry, tags map[string]string) {
				mu.Lock()
				defer mu.Unlock()
				captured = append(captured, tags)
			}
			log = zap.New(hook)
		})

		count := func() int {
			mu.Lock()
			defer mu.Unlock()
			return len(captured)
		}

		It("captures errors with their fields as tags", func() {
			log.Named("PickPlace").With(zap.String("state", "panic")).Error("halt failed", zap.Int("code", 20))

			Eventually(count).Should(Equal(1))
			mu.Lock()
			defer mu.Unlock()
			Expect(captured[0]).To(HaveKeyWithValue("state", "panic"))
			Expect(captured[0]).To(HaveKeyWithValue("code", "20"))
			Expect(captured[0]).To(HaveKeyWithValue("component", "PickPlace"))
		})

		It("ignores warnings and below", func() {
			log.Warn("error log not empty")
			log.Info("cycle started")

			Consistently(count).Should(BeZero())
		})
	})
})
