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

package standarderrors

import "errors"

var (
	// ErrReentrantDispatch is returned when a dispatch is started from inside another
	// dispatch of the same machine (e.g. from an entry action or an observer).
	ErrReentrantDispatch = errors.New("re-entrant dispatch: previous dispatch has not completed")

	// ErrErrorLogNotEmpty is returned when an operation requires a clean error log,
	// e.g. leaving PreIdle for Idle.
	ErrErrorLogNotEmpty = errors.New("error log is not empty")

	// ErrNoPreFaultState is returned when a recover is requested but the machine
	// never recorded the state that was active before panic
	ErrNoPreFaultState = errors.New("no pre-fault state recorded")

	// ErrUnknownEventKind is returned when decoding an event kind that does not exist
	ErrUnknownEventKind = errors.New("unknown event kind")

	// ErrUnknownState is returned when a state name does not exist
	ErrUnknownState = errors.New("unknown state")

	// ErrLoopStopped is returned when an event is submitted to a loop that is not running
	ErrLoopStopped = errors.New("event loop stopped")
)
