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

	"github.com/cenkalti/backoff"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/faults"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/metrics"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/sentry"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/standarderrors"
)

// outcome is what a reaction decided.
type outcome struct {
	// to is the next state; empty means stay without a transition
	to State

	// after runs once the transition (if any) has completed
	after func(ctx context.Context)

	// followUp is applied once to the new state after the transition
	followUp Event
}

func stay() outcome {
	return outcome{}
}

func transit(to State) outcome {
	return outcome{to: to}
}

// reaction is the code executed for one (state, kind) pair.
type reaction func(ctx context.Context, ev Event) outcome

// reactionTable maps every handled (state, kind) pair to its reaction.
// Pairs that are not in the table get the default reaction.
func (c *Controller) reactionTable() map[State]map[Kind]reaction {
	abort := func(from State, msg string) reaction {
		return func(ctx context.Context, ev Event) outcome {
			c.logger.Warnf("%s %s (error code %d)! Transition to Panic", from.label(), msg, ev.(FailEvent).ErrorCode)
			return transit(StatePanic)
		}
	}

	return map[State]map[Kind]reaction{
		StatePreIdle: {
			KindStart: c.preIdleStart,
			KindPlace: c.preIdlePlace,
			KindFail:  c.preIdleFail,
		},
		StateIdle: {
			KindStart: c.idleStart,
		},
		StateScanning: {
			KindScan: c.scanningScan,
			KindFail: abort(StateScanning, "scan failure"),
		},
		StatePickPlanning: {
			KindPlanning: c.pickPlanningPlanning,
			KindFail:     abort(StatePickPlanning, "plan not found"),
		},
		StatePicking: {
			KindPick: c.pickingPick,
			KindScan: c.replan(StatePicking, StatePickPlanning),
			KindFail: abort(StatePicking, "failed while picking"),
		},
		StatePlacePlanning: {
			KindPlanning: c.placePlanningPlanning,
			KindFail:     abort(StatePlacePlanning, "plan not found"),
		},
		StatePlacing: {
			KindPlace: c.placingPlace,
			KindScan:  c.replan(StatePlacing, StatePlacePlanning),
			KindFail:  abort(StatePlacing, "placing operation failed"),
		},
		StatePanic: {
			KindFail:    c.panicFail,
			KindStart:   c.panicStart,
			KindRecover: c.panicRecover,
		},
	}
}

// lookup finds the reaction for an event by its exact kind. A Pick or Place
// event is never handled as the planning event it refines.
func (c *Controller) lookup(state State, ev Event) (reaction, bool) {
	r, ok := c.reactions[state][ev.Kind()]
	return r, ok
}

// defaultReaction logs and discards an event the current state does not handle.
func (c *Controller) defaultReaction(state State, ev Event) {
	c.logger.Infof("%s Ignored %s event", state.label(), ev.Kind())
	metrics.IncIgnoredEvent(c.cfg.ID, string(state), string(ev.Kind()))
}

// CheckStartable is the guard of every exit from PreIdle to Idle. It fails with
// ErrErrorLogNotEmpty while unresolved faults are in the error log.
func (c *Controller) CheckStartable() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n := len(c.mctx.errorLog); n > 0 {
		return fmt.Errorf("%w: %d unresolved fault(s)", standarderrors.ErrErrorLogNotEmpty, n)
	}
	return nil
}

func (c *Controller) preIdleStart(ctx context.Context, ev Event) outcome {
	if err := c.CheckStartable(); err != nil {
		c.logger.Warnf("%s start refused: %v", StatePreIdle.label(), err)
		c.printErrorLog()
		return stay()
	}
	c.logger.Infof("%s preliminary procedure completed successfully, transition to Idle", StatePreIdle.label())
	return transit(StateIdle)
}

func (c *Controller) preIdlePlace(ctx context.Context, ev Event) outcome {
	if err := c.CheckStartable(); err != nil {
		c.logger.Warnf("%s cycle completed, staying in PreIdle: %v", StatePreIdle.label(), err)
		c.printErrorLog()
		return stay()
	}
	c.logger.Infof("%s pick&place completed! Transition to Idle", StatePreIdle.label())
	return transit(StateIdle)
}

func (c *Controller) preIdleFail(ctx context.Context, ev Event) outcome {
	code := ev.(FailEvent).ErrorCode
	record := c.recordFault(ctx, code, c.origin())
	c.logger.Errorf("%s hard failure with error code %d recorded (%s), manual intervention required", StatePreIdle.label(), code, record.ID)
	return stay()
}

func (c *Controller) idleStart(ctx context.Context, ev Event) outcome {
	cycleID := c.cfg.NewID()

	c.mu.Lock()
	c.mctx.cycleID = cycleID
	c.mctx.scanPayload = ""
	c.mctx.pickRequest = nil
	c.mctx.placeRequest = nil
	c.mu.Unlock()

	c.logger.Infof("%s requested manual start of cycle %s. Transition to Scanning", StateIdle.label(), cycleID)
	return transit(StateScanning)
}

func (c *Controller) scanningScan(ctx context.Context, ev Event) outcome {
	c.mu.Lock()
	c.mctx.scanPayload = ev.(ScanEvent).Payload
	c.mu.Unlock()

	c.logger.Infof("%s received a ScanEvent, transition to Pick Planning", StateScanning.label())
	return transit(StatePickPlanning)
}

func (c *Controller) replan(from State, to State) reaction {
	return func(ctx context.Context, ev Event) outcome {
		c.mu.Lock()
		c.mctx.scanPayload = ev.(ScanEvent).Payload
		c.mu.Unlock()

		c.logger.Infof("%s received a new scan event, replanning", from.label())
		return transit(to)
	}
}

func (c *Controller) pickPlanningPlanning(ctx context.Context, ev Event) outcome {
	planning := ev.(PlanningEvent)

	c.mu.Lock()
	request := PickRequest{
		CycleID:         c.mctx.cycleID,
		ScanPayload:     c.mctx.scanPayload,
		PointOfInterest: planning.PointOfInterest,
		OccupancyGrid:   planning.OccupancyGrid,
	}
	c.mctx.pickRequest = &request
	c.mu.Unlock()

	c.logger.Infof("%s received a planning request, transition to Picking", StatePickPlanning.label())

	out := transit(StatePicking)
	out.after = func(ctx context.Context) {
		c.cfg.Observer.PickRequested(ctx, request)
	}
	return out
}

// pickingPick keeps the grasp poses the executor reports with the pick so the
// completion describes the pick as it was executed.
func (c *Controller) pickingPick(ctx context.Context, ev Event) outcome {
	pick := ev.(PickEvent)

	c.mu.Lock()
	if c.mctx.pickRequest != nil {
		executed := *c.mctx.pickRequest
		if pick.PreGrasp != "" {
			executed.PreGrasp = pick.PreGrasp
		}
		if pick.PostGrasp != "" {
			executed.PostGrasp = pick.PostGrasp
		}
		c.mctx.pickRequest = &executed
	}
	c.mu.Unlock()

	c.logger.Infof("%s pick successful, transition to Place Planning", StatePicking.label())
	return transit(StatePlacePlanning)
}

func (c *Controller) placePlanningPlanning(ctx context.Context, ev Event) outcome {
	planning := ev.(PlanningEvent)

	c.mu.Lock()
	request := PlaceRequest{
		CycleID:         c.mctx.cycleID,
		PointOfInterest: planning.PointOfInterest,
		OccupancyGrid:   planning.OccupancyGrid,
	}
	c.mctx.placeRequest = &request
	c.mu.Unlock()

	c.logger.Infof("%s received a planning request, transition to Placing", StatePlacePlanning.label())

	out := transit(StatePlacing)
	out.after = func(ctx context.Context) {
		c.cfg.Observer.PlaceRequested(ctx, request)
	}
	return out
}

func (c *Controller) placingPlace(ctx context.Context, ev Event) outcome {
	place := ev.(PlaceEvent)

	c.mu.Lock()
	if c.mctx.placeRequest != nil {
		executed := *c.mctx.placeRequest
		if place.PrePlace != "" {
			executed.PrePlace = place.PrePlace
		}
		if place.PostPlace != "" {
			executed.PostPlace = place.PostPlace
		}
		c.mctx.placeRequest = &executed
	}
	completion := Completion{
		CycleID:   c.mctx.cycleID,
		Timestamp: c.cfg.Clock(),
	}
	if c.mctx.pickRequest != nil {
		completion.PickOperation = *c.mctx.pickRequest
	}
	if c.mctx.placeRequest != nil {
		completion.PlaceOperation = *c.mctx.placeRequest
	}
	c.mctx.completion = &completion
	c.mu.Unlock()

	c.logger.Infof("%s place successful, transition to PreIdle and sending a Completion event", StatePlacing.label())
	metrics.IncCompletedCycle(c.cfg.ID)

	out := transit(StatePreIdle)
	out.after = func(ctx context.Context) {
		c.cfg.Observer.CycleCompleted(ctx, completion)
	}
	return out
}

func (c *Controller) panicFail(ctx context.Context, ev Event) outcome {
	fail := ev.(FailEvent)

	if faults.Classify(fail.ErrorCode) == faults.ClassTransient {
		c.logger.Infof("%s transient fault (error code %d), running recovery routine", StatePanic.label(), fail.ErrorCode)
		metrics.IncFault(c.cfg.ID, faults.ClassTransient.String())
		c.recoverTransient(ctx, fail.ErrorCode)
		c.logger.Infof("%s recovered, transition to PreIdle", StatePanic.label())
		return transit(StatePreIdle)
	}

	c.logger.Errorf("%s hard failure (error code %d)! Transition to PreIdle and logging the failure", StatePanic.label(), fail.ErrorCode)
	out := transit(StatePreIdle)
	out.followUp = fail
	return out
}

func (c *Controller) panicStart(ctx context.Context, ev Event) outcome {
	c.logger.Infof("%s all stopped! Transition to PreIdle", StatePanic.label())
	return transit(StatePreIdle)
}

func (c *Controller) panicRecover(ctx context.Context, ev Event) outcome {
	previous, err := c.recoverTarget()
	if err != nil {
		c.logger.Debugf("%s %v", StatePanic.label(), err)
		c.defaultReaction(StatePanic, ev)
		return stay()
	}
	c.logger.Infof("%s all errors fixed! Recovering previous state %s", StatePanic.label(), previous)
	return transit(previous)
}

func (c *Controller) recoverTarget() (State, error) {
	previous, ok := c.PreFaultState()
	if !ok || !IsCycleState(previous) {
		return "", standarderrors.ErrNoPreFaultState
	}
	return previous, nil
}

// recoverTransient runs the recovery routine with bounded retries.
// A routine that keeps failing is reported, the fault is still not logged.
func (c *Controller) recoverTransient(ctx context.Context, code int) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RecoveryInterval), c.cfg.RecoveryAttempts),
		ctx,
	)

	err := backoff.Retry(func() error {
		return c.cfg.Actuation.RecoverTransient(ctx, code)
	}, policy)
	if err != nil {
		sentry.ReportFSMErrorf(c.logger, c.cfg.ID, "PickPlaceController", "recover_transient",
			"recovery routine for error code %d failed: %v", code, err)
	}
}

// recordFault appends a hard fault to the error log. It is the only place a
// hard fault is counted; transient faults are counted when their recovery starts.
func (c *Controller) recordFault(ctx context.Context, code int, state State) ErrorRecord {
	c.mu.Lock()
	record := ErrorRecord{
		ID:        c.cfg.NewID(),
		ErrorCode: code,
		CycleID:   c.mctx.cycleID,
		State:     state,
		Timestamp: c.cfg.Clock(),
	}
	c.mctx.errorLog = append(c.mctx.errorLog, record)
	size := len(c.mctx.errorLog)
	c.mu.Unlock()

	metrics.IncFault(c.cfg.ID, faults.ClassHard.String())
	metrics.UpdateErrorLogSize(c.cfg.ID, size)
	sentry.ReportFSMWarningf(c.logger, c.cfg.ID, "PickPlaceController", "hard_fault",
		"hard fault with error code %d recorded in state %s", code, state)

	c.cfg.Observer.FaultRecorded(ctx, record)
	return record
}

// printErrorLog logs the full error log, one line per record
func (c *Controller) printErrorLog() {
	records := c.ErrorLog()
	c.logger.Warnf("%s error log contains %d record(s):", StatePreIdle.label(), len(records))
	for i, r := range records {
		c.logger.Warnf("%s   #%d error code %d in %s at %s (%s)", StatePreIdle.label(),
			i+1, r.ErrorCode, r.State, r.Timestamp.Format(time.RFC3339), r.ID)
	}
}

func (c *Controller) origin() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mctx.origin
}
