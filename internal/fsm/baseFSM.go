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

package fsm

import (
	"context"
	"errors"
	"sync"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// BaseFSMInstance implements the shared transition engine for event-driven machines.
// Concrete controllers (e.g., the pick&place controller) wrap this and decide which
// edge to take; the instance only owns the current state and the enter callbacks.
type BaseFSMInstance struct {
	cfg BaseFSMInstanceConfig

	// mu is a mutex for protecting concurrent access to fields
	mu sync.RWMutex

	// fsm is the finite state machine that manages instance state
	fsm *fsm.FSM

	// Registered "enter_<state>" callbacks, used for entry actions and logging.
	callbacks map[string]fsm.Callback

	// Registered "after_transition" callbacks, called once per completed transition.
	transitionHooks []TransitionHook

	logger *zap.SugaredLogger
}

// TransitionHook is called after every completed transition with the edge that was taken.
type TransitionHook func(ctx context.Context, edge string, from string, to string)

// BaseFSMInstanceConfig holds parameters for setting up the base FSM.
type BaseFSMInstanceConfig struct {
	ID string

	// InitialState is the state the machine is in before the first event
	InitialState string

	// Transitions are the edges of the machine. The Name of an edge must be unique
	// per source state.
	Transitions []fsm.EventDesc
}

// NewBaseFSMInstance sets up a new FSM with the given transitions.
func NewBaseFSMInstance(cfg BaseFSMInstanceConfig, logger *zap.SugaredLogger) *BaseFSMInstance {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	baseInstance := &BaseFSMInstance{
		cfg:       cfg,
		callbacks: make(map[string]fsm.Callback),
		logger:    logger,
	}

	baseInstance.fsm = fsm.NewFSM(
		cfg.InitialState,
		fsm.Events(cfg.Transitions),
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				// Call registered callback for this state if exists
				if cb, ok := baseInstance.callbacks["enter_"+e.Dst]; ok {
					cb(ctx, e)
				}
			},
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if e.Src == e.Dst {
					return
				}
				for _, hook := range baseInstance.transitionHooks {
					hook(ctx, e.Event, e.Src, e.Dst)
				}
			},
		},
	)

	return baseInstance
}

// AddCallback adds a callback for a given callback name, e.g. "enter_idle"
func (s *BaseFSMInstance) AddCallback(name string, callback fsm.Callback) {
	s.callbacks[name] = callback
}

// AddTransitionHook registers a hook that runs after each completed transition
func (s *BaseFSMInstance) AddTransitionHook(hook TransitionHook) {
	s.transitionHooks = append(s.transitionHooks, hook)
}

// EnterInitialState runs the enter callback of the initial state.
// looplab/fsm does not call enter callbacks for the state it is constructed in,
// so the owner calls this once after registering its callbacks.
func (s *BaseFSMInstance) EnterInitialState(ctx context.Context) {
	initial := s.cfg.InitialState
	if cb, ok := s.callbacks["enter_"+initial]; ok {
		cb(ctx, &fsm.Event{FSM: s.fsm, Event: "init", Src: "", Dst: initial})
	}
}

// GetCurrentFSMState returns the current state of the FSM
func (s *BaseFSMInstance) GetCurrentFSMState() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fsm.Current()
}

// SetCurrentFSMState sets the current state of the FSM without running callbacks.
// This should only be called in tests
func (s *BaseFSMInstance) SetCurrentFSMState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fsm.SetState(state)
}

// SendEvent takes the named edge from the current state.
//
// Context expiration during a transition would leave looplab/fsm with a pending
// transition, so an already cancelled context is rejected before anything happens.
// A self-loop edge is not an error.
func (s *BaseFSMInstance) SendEvent(ctx context.Context, edge string, args ...interface{}) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Callbacks run inside Event, so s.mu must not be held here.
	err := s.fsm.Event(ctx, edge, args...)

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) && noTransition.Err == nil {
		return nil
	}
	if IsUnhandledEdge(err) {
		s.logger.Debugf("FSM %s has no edge %s from %s", s.cfg.ID, edge, s.GetCurrentFSMState())
	}

	return err
}

// IsUnhandledEdge returns true if err means the edge does not exist from the current state
func IsUnhandledEdge(err error) bool {
	var invalid fsm.InvalidEventError
	var unknown fsm.UnknownEventError
	return errors.As(err, &invalid) || errors.As(err, &unknown)
}

// GetID returns the id of the instance
func (s *BaseFSMInstance) GetID() string {
	return s.cfg.ID
}
