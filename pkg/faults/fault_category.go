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

package faults

import (
	"errors"
	"fmt"
)

// TransientErrorCode is the error code that, by convention, marks a fault the
// controller can resolve without operator intervention.
const TransientErrorCode = 10

// SanityCheckErrorCode is recorded when the sanity check on PreIdle entry fails.
const SanityCheckErrorCode = 1

// StallErrorCode is reported by the watchdog when a cycle state makes no progress.
const StallErrorCode = 11

// FaultClass indicates how the controller must respond to a given fault.
type FaultClass int

const (
	// ClassTransient indicates an operational fault that is resolved by the
	// recovery routine while in panic. Nothing is recorded in the error log.
	ClassTransient FaultClass = iota

	// ClassHard indicates a fault that is appended to the error log and blocks
	// every future start until the log is cleared by an operator.
	ClassHard
)

func (c FaultClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassHard:
		return "hard"
	default:
		return "unknown"
	}
}

// Classify returns the fault class of an error code
func Classify(code int) FaultClass {
	if code == TransientErrorCode {
		return ClassTransient
	}
	return ClassHard
}

// CodeError is a fault reported by a collaborator, identified by its error code.
type CodeError struct {
	Code   int
	Source string
}

func (e *CodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("fault with error code %d", e.Code)
	}
	return fmt.Sprintf("fault with error code %d from %s", e.Code, e.Source)
}

// ClassifiedError is a wrapper that includes the underlying error plus its FaultClass.
type ClassifiedError struct {
	Err   error
	Class FaultClass
}

// Error returns the original error message.
func (ce *ClassifiedError) Error() string {
	return ce.Err.Error()
}

// Unwrap returns the underlying wrapped error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// NewFault wraps an error code into a classified error
func NewFault(code int, source string) error {
	return &ClassifiedError{Err: &CodeError{Code: code, Source: source}, Class: Classify(code)}
}

// IsTransientFault reports whether err carries a transient fault. An error with
// a code but without a class is classified by its code.
func IsTransientFault(err error) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassTransient
	}
	code, ok := CodeOf(err)
	return ok && Classify(code) == ClassTransient
}

// CodeOf extracts the error code of a fault, if err carries one
func CodeOf(err error) (int, bool) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return 0, false
}
