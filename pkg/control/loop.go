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

package control

// Package control feeds events to the pick&place controller.
//
// Producers (sensor layer, planner, executor, operator, watchdog) submit events
// from any goroutine. A single loop goroutine dispatches them strictly in
// arrival order, then writes error log changes to the store and reports
// progress, so the controller never sees two events at once.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/faults"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/logger"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/metrics"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/pickplace"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/sentry"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/standarderrors"
)

const (
	// DefaultQueueSize is the number of events that may wait for dispatch
	DefaultQueueSize = 64
	// DefaultDispatchTimeout bounds a single dispatch including its entry actions
	DefaultDispatchTimeout = 5 * time.Second
)

// ProgressTracker is told the state after every dispatch
type ProgressTracker interface {
	Progress(state pickplace.State)
}

// LoopConfig configures an EventLoop
type LoopConfig struct {
	QueueSize       int
	DispatchTimeout time.Duration

	// Store and Journal are optional; without them the error log is not persisted
	Store   ErrorLogStore
	Journal *Journal

	// Tracker is optional
	Tracker ProgressTracker
}

type envelope struct {
	event pickplace.Event
	done  chan error
}

// EventLoop is the single consumer of the controller's inbound event channel.
type EventLoop struct {
	cfg        LoopConfig
	controller *pickplace.Controller
	events     chan envelope
	logger     *zap.SugaredLogger

	mu       sync.RWMutex
	running  bool
	stopped  chan struct{}
	stopOnce sync.Once

	dispatched uint64
}

// NewEventLoop creates a loop for controller. Call Execute to start it.
func NewEventLoop(controller *pickplace.Controller, cfg LoopConfig) *EventLoop {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}

	metrics.InitErrorCounter(metrics.ComponentControlLoop, controller.GetID())

	return &EventLoop{
		cfg:        cfg,
		controller: controller,
		events:     make(chan envelope, cfg.QueueSize),
		logger:     logger.For(logger.ComponentControlLoop),
		stopped:    make(chan struct{}),
	}
}

// Controller returns the controller the loop feeds
func (l *EventLoop) Controller() *pickplace.Controller {
	return l.controller
}

// Execute dispatches submitted events until ctx is cancelled. Events still
// queued at that point are rejected with ErrLoopStopped.
func (l *EventLoop) Execute(ctx context.Context) error {
	l.mu.Lock()
	select {
	case <-l.stopped:
		l.mu.Unlock()
		return standarderrors.ErrLoopStopped
	default:
	}
	if l.running {
		l.mu.Unlock()
		return errors.New("event loop is already running")
	}
	l.running = true
	l.mu.Unlock()

	defer l.drain()

	l.logger.Infof("Event loop for %s started in %s", l.controller.GetID(), l.controller.CurrentState())
	if l.cfg.Tracker != nil {
		l.cfg.Tracker.Progress(l.controller.CurrentState())
	}
	// Faults recorded by the initial entry action
	_ = l.flush(ctx)

	for {
		select {
		case <-ctx.Done():
			l.logger.Infof("Event loop for %s stopped after %d event(s)", l.controller.GetID(), l.dispatched)
			return nil
		case env := <-l.events:
			env.done <- l.dispatch(ctx, env.event)
		}
	}
}

func (l *EventLoop) dispatch(ctx context.Context, ev pickplace.Event) error {
	dispatchCtx, cancel := context.WithTimeout(ctx, l.cfg.DispatchTimeout)
	defer cancel()

	start := time.Now()
	err := l.controller.Dispatch(dispatchCtx, ev)
	if elapsed := time.Since(start); elapsed > l.cfg.DispatchTimeout {
		l.logger.Warnf("Dispatch of %s took %v, longer than the timeout of %v", ev.Kind(), elapsed, l.cfg.DispatchTimeout)
	}
	l.dispatched++

	if err != nil {
		metrics.IncErrorCount(metrics.ComponentControlLoop, l.controller.GetID())
		l.logger.Errorf("Dispatch of %s failed: %v", ev.Kind(), err)
	}

	if flushErr := l.flush(ctx); flushErr != nil && err == nil {
		err = flushErr
	}

	if l.cfg.Tracker != nil {
		l.cfg.Tracker.Progress(l.controller.CurrentState())
	}
	return err
}

// flush writes pending error log changes to the store
func (l *EventLoop) flush(ctx context.Context) error {
	if l.cfg.Store == nil || l.cfg.Journal == nil {
		return nil
	}

	if err := l.cfg.Journal.Flush(ctx, l.cfg.Store); err != nil {
		metrics.IncErrorCount(metrics.ComponentPersistence, l.controller.GetID())
		sentry.ReportFSMErrorf(l.logger, l.controller.GetID(), "PickPlaceController", "persist_error_log",
			"failed to persist error log (%d change(s) pending): %v", l.cfg.Journal.Pending(), err)
		return fmt.Errorf("persist error log: %w", err)
	}
	return nil
}

// drain rejects everything still queued once the loop has stopped.
// stopped is closed before taking the lock so that producers blocked on a
// full queue give up and release their read lock.
func (l *EventLoop) drain() {
	l.stopOnce.Do(func() { close(l.stopped) })

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()

	for {
		select {
		case env := <-l.events:
			env.done <- standarderrors.ErrLoopStopped
		default:
			return
		}
	}
}

// Submit queues ev and waits until it has been dispatched. It returns the
// dispatch error, ErrLoopStopped if the loop is not running, or ctx's error.
func (l *EventLoop) Submit(ctx context.Context, ev pickplace.Event) error {
	done, err := l.enqueue(ctx, ev)
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues ev without waiting for its dispatch
func (l *EventLoop) Post(ctx context.Context, ev pickplace.Event) error {
	_, err := l.enqueue(ctx, ev)
	return err
}

func (l *EventLoop) enqueue(ctx context.Context, ev pickplace.Event) (chan error, error) {
	if ev == nil {
		return nil, fmt.Errorf("submit: %w: nil event", standarderrors.ErrUnknownEventKind)
	}

	// The read lock keeps drain from finishing while an event is being queued.
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.running {
		return nil, standarderrors.ErrLoopStopped
	}

	done := make(chan error, 1)
	select {
	case l.events <- envelope{event: ev, done: done}:
		return done, nil
	case <-l.stopped:
		return nil, standarderrors.ErrLoopStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubmitFault converts a collaborator error carrying an error code into a Fail event
func (l *EventLoop) SubmitFault(ctx context.Context, err error) error {
	code, ok := faults.CodeOf(err)
	if !ok {
		return fmt.Errorf("submit fault: no error code in %w", err)
	}

	if faults.IsTransientFault(err) {
		l.logger.Infof("Collaborator reported %v, expecting recovery", err)
	} else {
		l.logger.Warnf("Collaborator reported %v", err)
	}
	return l.Submit(ctx, pickplace.FailEvent{ErrorCode: code})
}

// ClearErrorLog clears the controller's error log and removes the cleared
// records from the store.
func (l *EventLoop) ClearErrorLog(ctx context.Context) ([]pickplace.ErrorRecord, error) {
	cleared, err := l.controller.ClearErrorLog(ctx)
	if err != nil {
		return nil, err
	}
	if err := l.flush(ctx); err != nil {
		return cleared, err
	}
	return cleared, nil
}

// Snapshot returns a copy of the controller state
func (l *EventLoop) Snapshot() pickplace.Snapshot {
	return l.controller.Snapshot()
}

// Running returns whether Execute is in progress
func (l *EventLoop) Running() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

// DebugSnapshot is served on /debug/controllers
func (l *EventLoop) DebugSnapshot() interface{} {
	return l.Snapshot()
}
