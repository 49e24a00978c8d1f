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

// Package watchdog detects a pick&place cycle that stopped making progress.
//
// The controller itself has no notion of time. The watchdog watches the state
// reported after every dispatch and, when a cycle state is held for longer than
// the threshold, submits a Fail event with StallErrorCode so the controller
// aborts into panic like for any other collaborator failure. The event names
// the stalled state, so it is ignored if the cycle moved on before dispatch.
package watchdog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/faults"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/logger"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/metrics"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/pickplace"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/sentry"
)

// DefaultCheckInterval is how often the watchdog looks at the last progress
const DefaultCheckInterval = time.Second

// Submitter accepts the Fail event of a stall
type Submitter interface {
	Post(ctx context.Context, ev pickplace.Event) error
}

// Config configures a Watchdog
type Config struct {
	ID            string
	Threshold     time.Duration
	CheckInterval time.Duration
	ErrorCode     int

	// Clock is overridden in tests
	Clock func() time.Time
}

// Watchdog reports a stall at most once per state entry.
type Watchdog struct {
	cfg       Config
	submitter Submitter
	logger    *zap.SugaredLogger

	mu           sync.RWMutex
	state        pickplace.State
	lastProgress time.Time
	reported     bool
}

// New creates a watchdog. Start runs its check loop.
func New(cfg Config, submitter Submitter) *Watchdog {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.ErrorCode == 0 {
		cfg.ErrorCode = faults.StallErrorCode
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Watchdog{
		cfg:          cfg,
		submitter:    submitter,
		logger:       logger.For(logger.ComponentWatchdog),
		lastProgress: cfg.Clock(),
	}
}

// Progress records the state after a dispatch. Only a change of state counts
// as progress; an ignored event does not reset the timer.
func (w *Watchdog) Progress(state pickplace.State) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if state == w.state {
		return
	}
	w.state = state
	w.lastProgress = w.cfg.Clock()
	w.reported = false
}

// LastProgress returns the state and the time it was entered
func (w *Watchdog) LastProgress() (pickplace.State, time.Time) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state, w.lastProgress
}

// Start checks for stalls every CheckInterval until ctx is cancelled.
func (w *Watchdog) Start(ctx context.Context) error {
	w.logger.Infof("Watchdog for %s started with threshold %s", w.cfg.ID, w.cfg.Threshold)

	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watchdog stopped")
			return nil
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check submits a Fail event if a cycle state has been held for longer than
// the threshold. It returns whether a stall was reported.
func (w *Watchdog) Check(ctx context.Context) bool {
	w.mu.Lock()
	state := w.state
	held := w.cfg.Clock().Sub(w.lastProgress)
	stalled := pickplace.IsCycleState(state) && held > w.cfg.Threshold && !w.reported
	if stalled {
		w.reported = true
	}
	w.mu.Unlock()

	if !stalled {
		return false
	}

	metrics.AddStalledTime(w.cfg.ID, held.Seconds())
	sentry.ReportFSMWarningf(w.logger, w.cfg.ID, "PickPlaceController", "stall",
		"no progress in %s for %.2f seconds, aborting the cycle", state, held.Seconds())

	if err := w.submitter.Post(ctx, pickplace.FailEvent{ErrorCode: w.cfg.ErrorCode, State: state}); err != nil {
		w.logger.Errorf("Failed to submit stall of %s: %v", state, err)
		w.mu.Lock()
		w.reported = false
		w.mu.Unlock()
		return false
	}
	return true
}
