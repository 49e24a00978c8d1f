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

package pickplace

import (
	"context"
	"fmt"
	"time"

	internalfsm "github.com/united-manufacturing-hub/pickplace-core/internal/fsm"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/metrics"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/sentry"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/standarderrors"
)

// Dispatch delivers one event to the controller and runs it to completion:
// the reaction of the current state, the transition with its entry action and,
// if the reaction asked for one, a single follow-up event in the new state.
//
// An event the current state does not handle is logged and ignored; that is not
// an error. Errors are only returned for misuse: a nil or unknown event, a
// dispatch from inside a dispatch, or a context that is done before the lock is held.
func (c *Controller) Dispatch(ctx context.Context, ev Event) error {
	if ev == nil {
		return fmt.Errorf("dispatch: %w: nil event", standarderrors.ErrUnknownEventKind)
	}
	if _, err := ParseKind(string(ev.Kind())); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	ctx, release, err := c.dispatchLock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", ev.Kind(), err)
	}
	defer release()

	origin := c.CurrentState()
	c.mu.Lock()
	c.mctx.origin = origin
	c.mu.Unlock()

	if fail, ok := ev.(FailEvent); ok && fail.stale(origin) {
		c.logger.Infof("%s fail event raised in %s arrived late", origin.label(), fail.State)
		c.defaultReaction(origin, ev)
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.ObserveDispatchDuration(c.cfg.ID, string(ev.Kind()), time.Since(start))
	}()

	followUp, err := c.apply(ctx, ev)
	if err != nil {
		return err
	}
	if followUp == nil {
		return nil
	}

	c.logger.Debugf("Controller %s forwarding %s event to %s", c.cfg.ID, followUp.Kind(), c.CurrentState())
	next, err := c.apply(ctx, followUp)
	if err != nil {
		return err
	}
	if next != nil {
		c.logger.Warnf("Controller %s dropped nested follow-up %s event", c.cfg.ID, next.Kind())
	}
	return nil
}

// apply runs the reaction of the current state for ev and takes its transition.
// It returns the follow-up event the reaction asked for, if any.
func (c *Controller) apply(ctx context.Context, ev Event) (Event, error) {
	state := c.CurrentState()

	kind := ev.Kind()
	react, ok := c.lookup(state, ev)
	if !ok {
		c.defaultReaction(state, ev)
		return nil, nil
	}

	out := react(ctx, ev)
	if out.to != "" {
		if err := c.baseFSMInstance.SendEvent(ctx, edgeName(kind, out.to)); err != nil {
			// The machine stays where it was.
			if internalfsm.IsUnhandledEdge(err) {
				sentry.ReportFSMErrorf(c.logger, c.cfg.ID, "PickPlaceController", "missing_edge",
					"reaction for %s in %s chose %s, which has no edge", kind, state, out.to)
			} else {
				c.logger.Errorf("Controller %s failed to transition %s -> %s on %s: %v", c.cfg.ID, state, out.to, kind, err)
			}
			return nil, fmt.Errorf("transition %s -> %s: %w", state, out.to, err)
		}
	}

	if out.after != nil {
		out.after(ctx)
	}

	return out.followUp, nil
}

// ClearErrorLog empties the error log and returns the records that were removed.
// It waits for a dispatch in progress to finish, so the log never changes under a
// running reaction.
func (c *Controller) ClearErrorLog(ctx context.Context) ([]ErrorRecord, error) {
	ctx, release, err := c.dispatchLock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("clear error log: %w", err)
	}
	defer release()

	c.mu.Lock()
	cleared := c.mctx.errorLog
	c.mctx.errorLog = nil
	c.mu.Unlock()

	metrics.UpdateErrorLogSize(c.cfg.ID, 0)
	if len(cleared) > 0 {
		c.logger.Infof("%s error log cleared, %d record(s) removed", StatePreIdle.label(), len(cleared))
	}

	c.cfg.Observer.ErrorLogCleared(ctx, cleared)
	return cleared, nil
}
