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

	"github.com/looplab/fsm"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/faults"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/metrics"
)

// registerCallbacks sets up the entry actions of every state.
func (c *Controller) registerCallbacks() {
	c.baseFSMInstance.AddCallback("enter_"+string(StatePreIdle), func(ctx context.Context, e *fsm.Event) {
		c.logger.Infof("%s sanity check..", StatePreIdle.label())

		if err := c.cfg.Actuation.SanityCheck(ctx); err != nil {
			c.logger.Warnf("%s sanity check failed: %v", StatePreIdle.label(), err)
			code, ok := faults.CodeOf(err)
			if !ok {
				code = faults.SanityCheckErrorCode
			}
			c.recordFault(ctx, code, StatePreIdle)
			return
		}

		if n := len(c.ErrorLog()); n > 0 {
			c.logger.Warnf("%s %d unresolved fault(s) in the error log, start is blocked until it is cleared", StatePreIdle.label(), n)
		}
	})

	c.baseFSMInstance.AddCallback("enter_"+string(StateIdle), func(ctx context.Context, e *fsm.Event) {
		c.logger.Infof("%s init procedure and waiting manual start!", StateIdle.label())
	})

	c.baseFSMInstance.AddCallback("enter_"+string(StatePanic), func(ctx context.Context, e *fsm.Event) {
		// e.Src is empty only when panic is the initial state
		if e.Src != "" {
			c.mu.Lock()
			c.mctx.preFault = State(e.Src)
			c.mu.Unlock()
		}

		c.logger.Errorf("%s halting actuation, aborted %s", StatePanic.label(), e.Src)
		c.cfg.Actuation.Halt(ctx)
	})

	for _, s := range cycleStates {
		state := s
		c.baseFSMInstance.AddCallback("enter_"+string(state), func(ctx context.Context, e *fsm.Event) {
			c.logger.Infof("%s entered from %s", state.label(), e.Src)
		})
	}

	c.baseFSMInstance.AddTransitionHook(func(ctx context.Context, edge string, from string, to string) {
		c.logger.Debugf("Controller %s transitioned %s -> %s (%s)", c.cfg.ID, from, to, edge)
		metrics.IncTransition(c.cfg.ID, from, to)
		metrics.UpdateCurrentState(c.cfg.ID, to)
	})
}
