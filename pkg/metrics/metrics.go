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

package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/logger"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/sentry"
)

const (
	// Component labels
	ComponentController  = "pickplace_controller"
	ComponentControlLoop = "control_loop"
	ComponentWatchdog    = "watchdog"
	ComponentPersistence = "error_log_store"
	ComponentAPI         = "operator_api"
)

var (
	namespace = "pickplace"
	subsystem = "core"

	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors encountered by component",
		},
		[]string{"component", "instance"},
	)

	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transitions_total",
			Help:      "Total number of state transitions",
		},
		[]string{"instance", "from", "to"},
	)

	ignoredEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ignored_events_total",
			Help:      "Total number of events discarded by the default reaction",
		},
		[]string{"instance", "state", "event"},
	)

	faultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "faults_total",
			Help:      "Total number of faults by class (transient, hard)",
		},
		[]string{"instance", "class"},
	)

	cyclesCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycles_completed_total",
			Help:      "Total number of completed pick&place cycles",
		},
		[]string{"instance"},
	)

	errorLogSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "error_log_size",
			Help:      "Number of unresolved records in the error log",
		},
		[]string{"instance"},
	)

	currentState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "current_state",
			Help:      "Current state (0=pre_idle, 1=idle, 2=scanning, 3=pick_planning, 4=picking, 5=place_planning, 6=placing, 7=panic, -1=unknown)",
		},
		[]string{"instance"},
	)

	dispatchDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_duration_milliseconds",
			Help:      "Time taken to dispatch one event (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01,
				0.9:  0.01,
				0.99: 0.01,
			},
		},
		[]string{"instance", "event"},
	)

	stalledSeconds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stalled_total_seconds",
			Help:      "Total seconds a cycle state was held without progress",
		},
		[]string{"instance"},
	)
)

var stateValues = map[string]float64{
	"pre_idle":       0,
	"idle":           1,
	"scanning":       2,
	"pick_planning":  3,
	"picking":        4,
	"place_planning": 5,
	"placing":        6,
	"panic":          7,
}

// SnapshotProvider returns a JSON-serializable view of a running controller
type SnapshotProvider interface {
	DebugSnapshot() interface{}
}

var debugRegistry struct {
	providers map[string]SnapshotProvider
	mu        sync.RWMutex
}

// RegisterSnapshotProvider exposes a provider on /debug/controllers
func RegisterSnapshotProvider(name string, provider SnapshotProvider) {
	debugRegistry.mu.Lock()
	defer debugRegistry.mu.Unlock()

	if debugRegistry.providers == nil {
		debugRegistry.providers = make(map[string]SnapshotProvider)
	}
	debugRegistry.providers[name] = provider
}

// UnregisterSnapshotProvider removes a provider from /debug/controllers
func UnregisterSnapshotProvider(name string) {
	debugRegistry.mu.Lock()
	defer debugRegistry.mu.Unlock()
	delete(debugRegistry.providers, name)
}

func handleDebugControllers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	debugRegistry.mu.RLock()
	response := make(map[string]interface{}, len(debugRegistry.providers))
	for name, provider := range debugRegistry.providers {
		response[name] = provider.DebugSnapshot()
	}
	debugRegistry.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode debug info", http.StatusInternalServerError)
	}
}

// Handler returns the mux serving /metrics and /debug/controllers
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/controllers", handleDebugControllers)
	return mux
}

// SetupMetricsEndpoint starts an HTTP server to expose metrics.
// This should be called once at application startup.
func SetupMetricsEndpoint(addr string) *http.Server {
	server := &http.Server{
		Addr:        addr,
		Handler:     Handler(),
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssue(err, sentry.IssueTypeFatal, logger.For("metrics"))
		}
	}()

	return server
}

// IncErrorCount increments the error counter for a component
func IncErrorCount(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Inc()
}

// InitErrorCounter initializes the error counter for a component
func InitErrorCounter(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Add(0)
}

// InitControllerMetrics makes the series of a controller visible before the first event
func InitControllerMetrics(instance string) {
	errorCounter.WithLabelValues(ComponentController, instance).Add(0)
	faultsTotal.WithLabelValues(instance, "transient").Add(0)
	faultsTotal.WithLabelValues(instance, "hard").Add(0)
	cyclesCompletedTotal.WithLabelValues(instance).Add(0)
	stalledSeconds.WithLabelValues(instance).Add(0)
}

func IncTransition(instance, from, to string) {
	transitionsTotal.WithLabelValues(instance, from, to).Inc()
}

func IncIgnoredEvent(instance, state, event string) {
	ignoredEventsTotal.WithLabelValues(instance, state, event).Inc()
}

func IncFault(instance, class string) {
	faultsTotal.WithLabelValues(instance, class).Inc()
}

func IncCompletedCycle(instance string) {
	cyclesCompletedTotal.WithLabelValues(instance).Inc()
}

func UpdateErrorLogSize(instance string, size int) {
	errorLogSize.WithLabelValues(instance).Set(float64(size))
}

// UpdateCurrentState sets the current state gauge, -1 for unknown states
func UpdateCurrentState(instance, state string) {
	value, ok := stateValues[state]
	if !ok {
		value = -1
	}
	currentState.WithLabelValues(instance).Set(value)
}

// ObserveDispatchDuration records the time taken to dispatch one event
func ObserveDispatchDuration(instance, event string, duration time.Duration) {
	dispatchDuration.WithLabelValues(instance, event).Observe(float64(duration.Milliseconds()))
}

// AddStalledTime increases the stall counter by the specified seconds
func AddStalledTime(instance string, seconds float64) {
	stalledSeconds.WithLabelValues(instance).Add(seconds)
}
