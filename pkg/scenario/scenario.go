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

// Package scenario replays scripted event sequences against a running
// controller. Scripts are YAML:
//
//	name: hard fault blocks start
//	steps:
//	  - event: start
//	    expect: idle
//	  - event: fail
//	    errorCode: 20
//	  - action: clear_error_log
package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/logger"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/pickplace"
)

// ActionClearErrorLog is the operator action that empties the error log
const ActionClearErrorLog = "clear_error_log"

// ErrExpectationFailed is returned when the state after a step is not the expected one
var ErrExpectationFailed = errors.New("unexpected state")

// Scenario is a named list of steps
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is either an event or an operator action, optionally followed by a pause
// and a check of the resulting state.
type Step struct {
	pickplace.EventFields `yaml:",inline"`

	Action string        `yaml:"action,omitempty"`
	Expect string        `yaml:"expect,omitempty"`
	Delay  time.Duration `yaml:"delay,omitempty"`
}

// Target is what a scenario runs against, usually a control.EventLoop
type Target interface {
	Submit(ctx context.Context, ev pickplace.Event) error
	ClearErrorLog(ctx context.Context) ([]pickplace.ErrorRecord, error)
	Snapshot() pickplace.Snapshot
}

// StepResult is the outcome of one step
type StepResult struct {
	Index int
	Step  Step
	State pickplace.State
	Err   error
}

// Parse decodes and validates a scenario
func Parse(data []byte) (Scenario, error) {
	var sc Scenario

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

// Load reads a scenario file
func Load(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario %s: %w", path, err)
	}
	sc, err := Parse(data)
	if err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// Validate checks every step
func (sc Scenario) Validate() error {
	var errs []error
	for i, step := range sc.Steps {
		if err := step.validate(); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i+1, err))
		}
	}
	return errors.Join(errs...)
}

func (s Step) validate() error {
	switch {
	case s.Kind == "" && s.Action == "":
		return errors.New("needs an event or an action")
	case s.Kind != "" && s.Action != "":
		return errors.New("has both an event and an action")
	case s.Action != "" && s.Action != ActionClearErrorLog:
		return fmt.Errorf("unknown action %q", s.Action)
	}

	if s.Kind != "" {
		if _, err := s.Event(); err != nil {
			return err
		}
	}
	if s.Expect != "" {
		if _, err := pickplace.ParseState(s.Expect); err != nil {
			return err
		}
	}
	return nil
}

func (s Step) String() string {
	if s.Action != "" {
		return s.Action
	}
	if s.Kind == pickplace.KindFail {
		return fmt.Sprintf("fail(%d)", s.ErrorCode)
	}
	return string(s.Kind)
}

// Runner plays scenarios against a target
type Runner struct {
	target Target
	logger *zap.SugaredLogger
}

func NewRunner(target Target) *Runner {
	return &Runner{target: target, logger: logger.For(logger.ComponentScenario)}
}

// Run plays every step in order. It stops at the first step that fails or
// ends in an unexpected state and returns the results so far.
func (r *Runner) Run(ctx context.Context, sc Scenario) ([]StepResult, error) {
	r.logger.Infof("Running scenario %q with %d step(s)", sc.Name, len(sc.Steps))

	results := make([]StepResult, 0, len(sc.Steps))
	for i, step := range sc.Steps {
		result := StepResult{Index: i, Step: step}

		if step.Action == ActionClearErrorLog {
			cleared, err := r.target.ClearErrorLog(ctx)
			result.Err = err
			r.logger.Infof("Step %d: cleared %d error record(s)", i+1, len(cleared))
		} else {
			if step.Kind == pickplace.KindStart && step.Timestamp == "" {
				step.Timestamp = time.Now().Format(time.RFC3339)
			}
			ev, err := step.Event()
			if err == nil {
				err = r.target.Submit(ctx, ev)
			}
			result.Err = err
		}

		if step.Delay > 0 {
			select {
			case <-time.After(step.Delay):
			case <-ctx.Done():
				result.Err = ctx.Err()
			}
		}

		result.State = r.target.Snapshot().CurrentState
		results = append(results, result)

		if result.Err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i+1, step, result.Err)
		}
		if step.Expect != "" && string(result.State) != step.Expect {
			return results, fmt.Errorf("step %d (%s): %w: want %s, got %s", i+1, step, ErrExpectationFailed, step.Expect, result.State)
		}
		r.logger.Debugf("Step %d (%s) -> %s", i+1, step, result.State)
	}

	r.logger.Infof("Scenario %q completed in state %s", sc.Name, r.target.Snapshot().CurrentState)
	return results, nil
}
