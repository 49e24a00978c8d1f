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

import "context"

// Actuation is the executor side the controller influences through entry actions.
// All methods are called while a dispatch is in progress, so they must not
// dispatch events to the same controller.
type Actuation interface {
	// SanityCheck is run every time PreIdle is entered. A failing check is
	// recorded as a hard fault.
	SanityCheck(ctx context.Context) error

	// Halt stops all motion. It is run every time Panic is entered.
	Halt(ctx context.Context)

	// RecoverTransient resolves a transient fault while in Panic
	RecoverTransient(ctx context.Context, errorCode int) error
}

// Observer receives the requests and records the controller produces.
// Like Actuation, it is called synchronously from inside a dispatch.
type Observer interface {
	PickRequested(ctx context.Context, request PickRequest)
	PlaceRequested(ctx context.Context, request PlaceRequest)
	CycleCompleted(ctx context.Context, completion Completion)
	FaultRecorded(ctx context.Context, record ErrorRecord)
	ErrorLogCleared(ctx context.Context, cleared []ErrorRecord)
}

// NopActuation is an Actuation that always succeeds
type NopActuation struct{}

func (NopActuation) SanityCheck(context.Context) error          { return nil }
func (NopActuation) Halt(context.Context)                       {}
func (NopActuation) RecoverTransient(context.Context, int) error { return nil }

// NopObserver discards everything
type NopObserver struct{}

func (NopObserver) PickRequested(context.Context, PickRequest)     {}
func (NopObserver) PlaceRequested(context.Context, PlaceRequest)   {}
func (NopObserver) CycleCompleted(context.Context, Completion)     {}
func (NopObserver) FaultRecorded(context.Context, ErrorRecord)     {}
func (NopObserver) ErrorLogCleared(context.Context, []ErrorRecord) {}

var (
	_ Actuation = NopActuation{}
	_ Observer  = NopObserver{}
)
