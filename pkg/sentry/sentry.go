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
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cespare/xxhash/v2"
	"github.com/getsentry/sentry-go"
	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"
	"go.uber.org/zap"
)

const (
	// DefaultAppVersion is the version of builds without a version tag
	DefaultAppVersion = "0.0.0-dev"

	productionEnvironment  = "production"
	developmentEnvironment = "development"

	// debounceWindow is how long an issue with the same title is not resent
	debounceWindow = 2 * time.Hour
	cullInterval   = 10 * time.Minute
)

// Options configures the sentry client
type Options struct {
	DSN        string
	AppVersion string
	// Debounce drops repeated issues with the same title within two hours
	Debounce bool
}

var (
	debounceMu   sync.Mutex
	debounce     = true
	recentlySent = newRecentlySent()
)

// InitSentry initializes the sentry client. It returns false when reporting stays
// disabled, which is the case without a DSN or for development builds.
func InitSentry(opts Options) bool {
	debounceMu.Lock()
	debounce = opts.Debounce
	debounceMu.Unlock()

	if opts.DSN == "" || opts.AppVersion == "" || opts.AppVersion == DefaultAppVersion {
		zap.S().Debug("Sentry disabled for local development build")
		return false
	}

	environment := developmentEnvironment
	version, err := semver.NewVersion(opts.AppVersion)
	if err != nil {
		zap.S().Errorf("Failed to parse app version, using default environment (development): %s", err)
	} else if version.Prerelease() == "" {
		environment = productionEnvironment
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Environment: environment,
		Release:     "pickplace@" + opts.AppVersion,
	})
	if err != nil {
		zap.S().Errorf("Failed to initialize Sentry: %s", err)
		return false
	}
	return true
}

// Flush waits for buffered events to be sent
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// shouldSend returns false if an issue with this title was sent recently
func shouldSend(title string) bool {
	debounceMu.Lock()
	defer debounceMu.Unlock()

	if !debounce {
		return true
	}
	key := xxhash.Sum64String(title)
	if _, ok := recentlySent.Load(key); ok {
		return false
	}
	recentlySent.Set(key, time.Now())
	return true
}

// newRecentlySent keys send times by the hash of the issue title
func newRecentlySent() *expiremap.ExpireMap[uint64, time.Time] {
	return expiremap.NewEx[uint64, time.Time](cullInterval, debounceWindow)
}

func getMeaningfulErrorTitle(err error) string {
	message := err.Error()

	// First phrase, up to a period, comma or colon
	if idx := strings.IndexAny(message, ".,:"); idx > 0 {
		message = message[:idx]
	}
	if len(message) > 100 {
		message = message[:97] + "..."
	}
	return message
}

func createSentryEvent(level sentry.Level, err error, context map[string]interface{}) *sentry.Event {
	event := sentry.NewEvent()
	event.Level = level
	event.Message = err.Error()
	event.Exception = []sentry.Exception{{
		Type:       getMeaningfulErrorTitle(err),
		Value:      err.Error(),
		Stacktrace: sentry.ExtractStacktrace(err),
	}}
	event.Fingerprint = []string{"{{ default }}", "level: " + string(level)}

	for key, value := range context {
		switch v := value.(type) {
		case string:
			if event.Tags == nil {
				event.Tags = make(map[string]string)
			}
			event.Tags[key] = v
		default:
			if event.Extra == nil {
				event.Extra = make(map[string]interface{})
			}
			event.Extra[key] = v
		}

		if key == "operation" || key == "fsm_type" {
			event.Fingerprint = append(event.Fingerprint, fmt.Sprintf("%s: %v", key, value))
		}
	}

	return event
}

func sendSentryEvent(event *sentry.Event) {
	localHub := sentry.CurrentHub().Clone()
	localHub.CaptureEvent(event)
}
