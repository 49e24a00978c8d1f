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
	"github.com/tiendc/go-deepcopy"
)

// Snapshot is a point-in-time copy of the controller, safe to hand to other goroutines.
type Snapshot struct {
	ID            string        `json:"id" yaml:"id"`
	CurrentState  State         `json:"currentState" yaml:"currentState"`
	PreFaultState State         `json:"preFaultState,omitempty" yaml:"preFaultState,omitempty"`
	CycleID       string        `json:"cycleId,omitempty" yaml:"cycleId,omitempty"`
	ScanPayload   string        `json:"scanPayload,omitempty" yaml:"scanPayload,omitempty"`
	ErrorLog      []ErrorRecord `json:"errorLog" yaml:"errorLog"`
	PickRequest   *PickRequest  `json:"pickRequest,omitempty" yaml:"pickRequest,omitempty"`
	PlaceRequest  *PlaceRequest `json:"placeRequest,omitempty" yaml:"placeRequest,omitempty"`
	Completion    *Completion   `json:"completion,omitempty" yaml:"completion,omitempty"`
}

// Snapshot returns a deep copy of the controller's observable state
func (c *Controller) Snapshot() Snapshot {
	current := c.CurrentState()

	c.mu.RLock()
	view := Snapshot{
		ID:            c.cfg.ID,
		CurrentState:  current,
		PreFaultState: c.mctx.preFault,
		CycleID:       c.mctx.cycleID,
		ScanPayload:   c.mctx.scanPayload,
		ErrorLog:      c.mctx.errorLog,
		PickRequest:   c.mctx.pickRequest,
		PlaceRequest:  c.mctx.placeRequest,
		Completion:    c.mctx.completion,
	}

	var snap Snapshot
	err := deepcopy.Copy(&snap, &view)
	c.mu.RUnlock()

	if err != nil {
		// Only plain data is copied, so this does not happen in practice.
		c.logger.Errorf("Controller %s failed to copy snapshot: %v", c.cfg.ID, err)
		view.ErrorLog = append([]ErrorRecord(nil), view.ErrorLog...)
		return view
	}
	if snap.ErrorLog == nil {
		snap.ErrorLog = []ErrorRecord{}
	}
	return snap
}
