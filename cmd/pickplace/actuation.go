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


package main

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/faults"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/logger"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/pickplace"
)

// simulatedActuation stands in for the executor when no hardware is attached.
// It can be told to fail the sanity check or the first transient recoveries.
type simulatedActuation struct {
	logger *zap.SugaredLogger

	mu               sync.Mutex
	sanityFaultCode  int
	recoveryFailures int
	halts            int
}

func newSimulatedActuation(sanityFaultCode, recoveryFailures int) *simulatedActuation {
	return &simulatedActuation{
		logger:           logger.For("Actuation"),
		sanityFaultCode:  sanityFaultCode,
		recoveryFailures: recoveryFailures,
	}
}

func (a *simulatedActuation) SanityCheck(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sanityFaultCode != 0 {
		return faults.NewFault(a.sanityFaultCode, "simulated sanity check")
	}
	return nil
}

func (a *simulatedActuation) Halt(context.Context) {
	a.mu.Lock()
	a.halts++
	a.mu.Unlock()

	a.logger.Warn("Motion halted")
}

func (a *simulatedActuation) RecoverTransient(_ context.Context, errorCode int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.recoveryFailures > 0 {
		a.recoveryFailures--
		return faults.NewFault(errorCode, "simulated recovery")
	}
	a.logger.Infof("Recovered from transient fault %d", errorCode)
	return nil
}

// Halts returns how often motion was halted
func (a *simulatedActuation) Halts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.halts
}

var _ pickplace.Actuation = (*simulatedActuation)(nil)
