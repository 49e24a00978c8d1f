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
	"fmt"
	"time"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/standarderrors"
)

// State is one of the controller states. Exactly one is active at any instant.
type State string

const (
	// StatePreIdle runs the sanity check and holds the error log. It is the
	// state the controller starts in and returns to after every cycle or fault.
	StatePreIdle State = "pre_idle"
	// StateIdle waits for a manual start
	StateIdle State = "idle"
	// StateScanning waits for the sensor layer to report a target
	StateScanning State = "scanning"
	// StatePickPlanning waits for the planner to answer with a pick plan
	StatePickPlanning State = "pick_planning"
	// StatePicking waits for the executor to report the pick
	StatePicking State = "picking"
	// StatePlacePlanning waits for the planner to answer with a place plan
	StatePlacePlanning State = "place_planning"
	// StatePlacing waits for the executor to report the place
	StatePlacing State = "placing"
	// StatePanic halts actuation until the fault is resolved or acknowledged
	StatePanic State = "panic"
)

// AllStates lists every state in cycle order
var AllStates = []State{
	StatePreIdle,
	StateIdle,
	StateScanning,
	StatePickPlanning,
	StatePicking,
	StatePlacePlanning,
	StatePlacing,
	StatePanic,
}

// cycleStates are the states a Fail aborts into panic, and the only valid
// pre-fault states
var cycleStates = []State{
	StateScanning,
	StatePickPlanning,
	StatePicking,
	StatePlacePlanning,
	StatePlacing,
}

// IsCycleState returns whether the given state is part of an active pick&place cycle
func IsCycleState(state State) bool {
	switch state {
	case StateScanning,
		StatePickPlanning,
		StatePicking,
		StatePlacePlanning,
		StatePlacing:
		return true
	}
	return false
}

// ParseState converts a state name into a State
func ParseState(name string) (State, error) {
	for _, s := range AllStates {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", standarderrors.ErrUnknownState, name)
}

// label is the tag used in log lines for a state
func (s State) label() string {
	switch s {
	case StatePreIdle:
		return "[PRE-IDLE]"
	case StateIdle:
		return "[IDLE]"
	case StateScanning:
		return "[SCANNING]"
	case StatePickPlanning:
		return "[PICK PLANNING]"
	case StatePicking:
		return "[PICKING]"
	case StatePlacePlanning:
		return "[PLACE PLANNING]"
	case StatePlacing:
		return "[PLACING]"
	case StatePanic:
		return "[PANIC]"
	default:
		return "[" + string(s) + "]"
	}
}

// ErrorRecord is a hard fault kept in the error log until an operator clears it.
type ErrorRecord struct {
	ID        string    `json:"id" yaml:"id"`
	ErrorCode int       `json:"errorCode" yaml:"errorCode"`
	CycleID   string    `json:"cycleId,omitempty" yaml:"cycleId,omitempty"`
	State     State     `json:"state" yaml:"state"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// PickRequest is built in pick planning and read by the executor after the
// transition to picking.
type PickRequest struct {
	CycleID         string `json:"cycleId"`
	ScanPayload     string `json:"scanPayload,omitempty"`
	PointOfInterest string `json:"pointOfInterest"`
	OccupancyGrid   string `json:"occupancyGrid,omitempty"`
	PreGrasp        string `json:"preGrasp,omitempty"`
	PostGrasp       string `json:"postGrasp,omitempty"`
}

// PlaceRequest is built in place planning and read by the executor after the
// transition to placing.
type PlaceRequest struct {
	CycleID         string `json:"cycleId"`
	PointOfInterest string `json:"pointOfInterest"`
	OccupancyGrid   string `json:"occupancyGrid,omitempty"`
	PrePlace        string `json:"prePlace,omitempty"`
	PostPlace       string `json:"postPlace,omitempty"`
}

// Completion is produced when placing succeeds. It hands the operations of the
// finished cycle to whoever reads it after the transition to PreIdle.
type Completion struct {
	CycleID        string       `json:"cycleId"`
	PickOperation  PickRequest  `json:"pickOperation"`
	PlaceOperation PlaceRequest `json:"placeOperation"`
	Timestamp      time.Time    `json:"timestamp"`
}

// Event converts the completion into its event form
func (c Completion) Event() CompletionEvent {
	return CompletionEvent{
		PickOperation: PickEvent{
			PlanningEvent: PlanningEvent{PointOfInterest: c.PickOperation.PointOfInterest, OccupancyGrid: c.PickOperation.OccupancyGrid},
			PreGrasp:      c.PickOperation.PreGrasp,
			PostGrasp:     c.PickOperation.PostGrasp,
		},
		PlaceOperation: PlaceEvent{
			PlanningEvent: PlanningEvent{PointOfInterest: c.PlaceOperation.PointOfInterest, OccupancyGrid: c.PlaceOperation.OccupancyGrid},
			PrePlace:      c.PlaceOperation.PrePlace,
			PostPlace:     c.PlaceOperation.PostPlace,
		},
		Timestamp: c.Timestamp.Format(time.RFC3339Nano),
	}
}
