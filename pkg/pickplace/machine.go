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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	internalfsm "github.com/united-manufacturing-hub/pickplace-core/internal/fsm"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/logger"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/metrics"
)

const (
	// DefaultRecoveryAttempts is how often the transient recovery routine is retried
	DefaultRecoveryAttempts = 3
	// DefaultRecoveryInterval is the pause between two recovery attempts
	DefaultRecoveryInterval = 100 * time.Millisecond
)

// ControllerConfig holds parameters for setting up a Controller.
type ControllerConfig struct {
	ID string

	// InitialState is StatePreIdle unless the simplified start in StateIdle is wanted
	InitialState State

	// ErrorLog restores a previously persisted error log
	ErrorLog []ErrorRecord

	Actuation Actuation
	Observer  Observer

	// RecoveryAttempts and RecoveryInterval bound the retries of Actuation.RecoverTransient
	RecoveryAttempts uint64
	RecoveryInterval time.Duration

	// Clock and NewID are overridden in tests
	Clock func() time.Time
	NewID func() string
}

// machineContext is everything the controller knows besides the current state.
// The error log lives here, beside the pre-fault state, because it outlives every cycle.
type machineContext struct {
	preFault    State
	errorLog    []ErrorRecord
	cycleID     string
	scanPayload string

	pickRequest  *PickRequest
	placeRequest *PlaceRequest
	completion   *Completion

	// origin is the state the event currently being dispatched arrived in
	origin State
}

// Controller is the pick&place state machine.
// Dispatch is run-to-completion: at most one dispatch is in progress at a time.
type Controller struct {
	cfg ControllerConfig

	baseFSMInstance *internalfsm.BaseFSMInstance
	dispatchLock    *internalfsm.DispatchLock

	// mu protects mctx against readers on other goroutines
	mu   sync.RWMutex
	mctx machineContext

	reactions map[State]map[Kind]reaction

	logger *zap.SugaredLogger
}

// edge is one transition of the machine
type edge struct {
	from State
	kind Kind
	to   State
}

// edgeName is the looplab event name of an edge. Recover has one edge per
// possible pre-fault state, so the destination is part of the name.
func edgeName(kind Kind, to State) string {
	return string(kind) + "_to_" + string(to)
}

// machineEdges lists every transition. Self-loops (PreIdle on Fail, guarded
// PreIdle exits) are reactions without a transition and do not appear here.
func machineEdges() []edge {
	edges := []edge{
		{StatePreIdle, KindStart, StateIdle},
		{StatePreIdle, KindPlace, StateIdle},
		{StateIdle, KindStart, StateScanning},
		{StateScanning, KindScan, StatePickPlanning},
		{StatePickPlanning, KindPlanning, StatePicking},
		{StatePicking, KindPick, StatePlacePlanning},
		{StatePicking, KindScan, StatePickPlanning},
		{StatePlacePlanning, KindPlanning, StatePlacing},
		{StatePlacing, KindPlace, StatePreIdle},
		{StatePlacing, KindScan, StatePlacePlanning},
		{StatePanic, KindFail, StatePreIdle},
		{StatePanic, KindStart, StatePreIdle},
	}

	for _, s := range cycleStates {
		edges = append(edges,
			edge{s, KindFail, StatePanic},
			edge{StatePanic, KindRecover, s},
		)
	}

	return edges
}

// NewController creates a controller and runs the entry action of its initial state.
func NewController(ctx context.Context, cfg ControllerConfig, log *zap.SugaredLogger) *Controller {
	if cfg.ID == "" {
		cfg.ID = "pickplace"
	}
	if cfg.InitialState == "" {
		cfg.InitialState = StatePreIdle
	}
	if cfg.Actuation == nil {
		cfg.Actuation = NopActuation{}
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.RecoveryAttempts == 0 {
		cfg.RecoveryAttempts = DefaultRecoveryAttempts
	}
	if cfg.RecoveryInterval == 0 {
		cfg.RecoveryInterval = DefaultRecoveryInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.New().String() }
	}
	if log == nil {
		log = logger.For(logger.ComponentController)
	}

	transitions := make([]fsm.EventDesc, 0, len(machineEdges()))
	for _, e := range machineEdges() {
		transitions = append(transitions, fsm.EventDesc{
			Name: edgeName(e.kind, e.to),
			Src:  []string{string(e.from)},
			Dst:  string(e.to),
		})
	}

	c := &Controller{
		cfg: cfg,
		baseFSMInstance: internalfsm.NewBaseFSMInstance(internalfsm.BaseFSMInstanceConfig{
			ID:           cfg.ID,
			InitialState: string(cfg.InitialState),
			Transitions:  transitions,
		}, log),
		dispatchLock: internalfsm.NewDispatchLock(),
		mctx: machineContext{
			errorLog: append([]ErrorRecord(nil), cfg.ErrorLog...),
		},
		logger: log,
	}

	c.reactions = c.reactionTable()
	c.registerCallbacks()

	metrics.InitControllerMetrics(cfg.ID)
	metrics.UpdateErrorLogSize(cfg.ID, len(c.mctx.errorLog))
	metrics.UpdateCurrentState(cfg.ID, string(cfg.InitialState))

	// The initial entry action is part of construction; nothing can dispatch yet.
	ctx, release, err := c.dispatchLock.Acquire(ctx)
	if err == nil {
		c.baseFSMInstance.EnterInitialState(ctx)
		release()
	}

	return c
}

// GetID returns the id of the controller
func (c *Controller) GetID() string {
	return c.cfg.ID
}

// CurrentState returns the active state
func (c *Controller) CurrentState() State {
	return State(c.baseFSMInstance.GetCurrentFSMState())
}

// PreFaultState returns the state that was active immediately before the most
// recent entry into panic. ok is false if panic was never entered.
func (c *Controller) PreFaultState() (state State, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mctx.preFault, c.mctx.preFault != ""
}

// ErrorLog returns a copy of the error log
func (c *Controller) ErrorLog() []ErrorRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ErrorRecord(nil), c.mctx.errorLog...)
}

// LastPickRequest returns the pick request built by the most recent pick planning
func (c *Controller) LastPickRequest() (PickRequest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.mctx.pickRequest == nil {
		return PickRequest{}, false
	}
	return *c.mctx.pickRequest, true
}

// LastPlaceRequest returns the place request built by the most recent place planning
func (c *Controller) LastPlaceRequest() (PlaceRequest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.mctx.placeRequest == nil {
		return PlaceRequest{}, false
	}
	return *c.mctx.placeRequest, true
}

// LastCompletion returns the completion of the most recently finished cycle
func (c *Controller) LastCompletion() (Completion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.mctx.completion == nil {
		return Completion{}, false
	}
	return *c.mctx.completion, true
}

// CycleID returns the id of the current (or last) cycle
func (c *Controller) CycleID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mctx.cycleID
}

// SetCurrentState forces the active state without running any reaction.
// This is a testing-only utility.
func (c *Controller) SetCurrentState(state State) {
	c.baseFSMInstance.SetCurrentFSMState(string(state))
}

