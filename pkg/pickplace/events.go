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

	"github.com/united-manufacturing-hub/pickplace-core/pkg/standarderrors"
)

// Kind is the discriminant every event carries.
type Kind string

const (
	KindStart      Kind = "start"
	KindScan       Kind = "scan"
	KindPlanning   Kind = "planning"
	KindPick       Kind = "pick"
	KindPlace      Kind = "place"
	KindFail       Kind = "fail"
	KindRecover    Kind = "recover"
	KindCompletion Kind = "completion"
)

// AllKinds lists every event kind
var AllKinds = []Kind{
	KindStart,
	KindScan,
	KindPlanning,
	KindPick,
	KindPlace,
	KindFail,
	KindRecover,
	KindCompletion,
}

// Code returns the numeric discriminant of the kind (0 means not set)
func (k Kind) Code() int {
	switch k {
	case KindStart:
		return 1
	case KindScan:
		return 2
	case KindPlanning:
		return 3
	case KindPick:
		return 4
	case KindPlace:
		return 5
	case KindCompletion:
		return 6
	case KindFail:
		return 7
	case KindRecover:
		return 8
	default:
		return 0
	}
}

// ParseKind converts a kind name into a Kind
func ParseKind(name string) (Kind, error) {
	for _, k := range AllKinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", standarderrors.ErrUnknownEventKind, name)
}

// Event is the closed set of inputs the controller reacts to.
// Only the types in this file implement it.
type Event interface {
	Kind() Kind
	isEvent()
}

// StartEvent is sent by the operator console
type StartEvent struct {
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// ScanEvent is sent by the sensor layer when an object is detected in its field of view
type ScanEvent struct {
	Payload string `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// PlanningEvent is sent by the planner. The point of interest is the plan to go
// from one point to another and is used both for picking and for placing.
type PlanningEvent struct {
	PointOfInterest string `json:"pointOfInterest,omitempty" yaml:"pointOfInterest,omitempty"`
	OccupancyGrid   string `json:"occupancyGrid,omitempty" yaml:"occupancyGrid,omitempty"`
}

// PickEvent is a planning event with the pre and post grasp poses.
// Pre-grasp is the pose kept at a distance from the object before grasping,
// post-grasp is how the robot retreats with the object.
type PickEvent struct {
	PlanningEvent `yaml:",inline"`
	PreGrasp      string `json:"preGrasp,omitempty" yaml:"preGrasp,omitempty"`
	PostGrasp     string `json:"postGrasp,omitempty" yaml:"postGrasp,omitempty"`
}

// PlaceEvent is a planning event with the pre and post place poses.
type PlaceEvent struct {
	PlanningEvent `yaml:",inline"`
	PrePlace      string `json:"prePlace,omitempty" yaml:"prePlace,omitempty"`
	PostPlace     string `json:"postPlace,omitempty" yaml:"postPlace,omitempty"`
}

// FailEvent is sent by any collaborator that detected a fault.
// A fault tied to one state sets State; the controller then ignores the event
// unless it is still in that state when the event is dispatched.
type FailEvent struct {
	ErrorCode int   `json:"errorCode" yaml:"errorCode"`
	State     State `json:"state,omitempty" yaml:"state,omitempty"`
}

// stale reports whether the fault was raised for a state other than current
func (e FailEvent) stale(current State) bool {
	return e.State != "" && e.State != current
}

// RecoverEvent is sent by the operator console once a fault has been fixed
type RecoverEvent struct{}

// CompletionEvent carries both operations of a finished cycle
type CompletionEvent struct {
	PickOperation  PickEvent  `json:"pickOperation" yaml:"pickOperation"`
	PlaceOperation PlaceEvent `json:"placeOperation" yaml:"placeOperation"`
	Timestamp      string     `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

func (StartEvent) Kind() Kind      { return KindStart }
func (ScanEvent) Kind() Kind       { return KindScan }
func (PlanningEvent) Kind() Kind   { return KindPlanning }
func (PickEvent) Kind() Kind       { return KindPick }
func (PlaceEvent) Kind() Kind      { return KindPlace }
func (FailEvent) Kind() Kind       { return KindFail }
func (RecoverEvent) Kind() Kind    { return KindRecover }
func (CompletionEvent) Kind() Kind { return KindCompletion }

func (StartEvent) isEvent()      {}
func (ScanEvent) isEvent()       {}
func (PlanningEvent) isEvent()   {}
func (PickEvent) isEvent()       {}
func (PlaceEvent) isEvent()      {}
func (FailEvent) isEvent()       {}
func (RecoverEvent) isEvent()    {}
func (CompletionEvent) isEvent() {}

// EventFields is the flat form of an event, as written in scenario scripts and
// posted to the operator API. Fields that do not belong to the kind are ignored.
type EventFields struct {
	Kind Kind `json:"kind" yaml:"event,omitempty"`

	Timestamp       string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Payload         string `json:"payload,omitempty" yaml:"payload,omitempty"`
	PointOfInterest string `json:"pointOfInterest,omitempty" yaml:"pointOfInterest,omitempty"`
	OccupancyGrid   string `json:"occupancyGrid,omitempty" yaml:"occupancyGrid,omitempty"`
	PreGrasp        string `json:"preGrasp,omitempty" yaml:"preGrasp,omitempty"`
	PostGrasp       string `json:"postGrasp,omitempty" yaml:"postGrasp,omitempty"`
	PrePlace        string `json:"prePlace,omitempty" yaml:"prePlace,omitempty"`
	PostPlace       string `json:"postPlace,omitempty" yaml:"postPlace,omitempty"`
	ErrorCode       int    `json:"errorCode,omitempty" yaml:"errorCode,omitempty"`
	FaultState      State  `json:"faultState,omitempty" yaml:"faultState,omitempty"`
}

// Event builds the event the fields describe
func (f EventFields) Event() (Event, error) {
	kind, err := ParseKind(string(f.Kind))
	if err != nil {
		return nil, err
	}

	planning := PlanningEvent{PointOfInterest: f.PointOfInterest, OccupancyGrid: f.OccupancyGrid}

	switch kind {
	case KindStart:
		return StartEvent{Timestamp: f.Timestamp}, nil
	case KindScan:
		return ScanEvent{Payload: f.Payload}, nil
	case KindPlanning:
		return planning, nil
	case KindPick:
		return PickEvent{PlanningEvent: planning, PreGrasp: f.PreGrasp, PostGrasp: f.PostGrasp}, nil
	case KindPlace:
		return PlaceEvent{PlanningEvent: planning, PrePlace: f.PrePlace, PostPlace: f.PostPlace}, nil
	case KindFail:
		return FailEvent{ErrorCode: f.ErrorCode, State: f.FaultState}, nil
	case KindRecover:
		return RecoverEvent{}, nil
	default:
		return CompletionEvent{Timestamp: f.Timestamp}, nil
	}
}
