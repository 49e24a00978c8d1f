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

	"golang.org/x/sync/semaphore"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/standarderrors"
)

type dispatchKey struct{}

// DispatchLock serializes dispatches on a machine.
// It uses a semaphore with a weight of 1 so that waiting callers honour context
// cancellation, and marks the context handed to the holder so that a nested
// dispatch on the same machine fails instead of deadlocking.
type DispatchLock struct {
	sem *semaphore.Weighted
}

func NewDispatchLock() *DispatchLock {
	return &DispatchLock{
		sem: semaphore.NewWeighted(1),
	}
}

// Acquire blocks until the lock is free or ctx is done.
// The returned context must be used for everything done while holding the lock.
func (l *DispatchLock) Acquire(ctx context.Context) (context.Context, func(), error) {
	if holder, ok := ctx.Value(dispatchKey{}).(*DispatchLock); ok && holder == l {
		return ctx, func() {}, standarderrors.ErrReentrantDispatch
	}

	if err := l.sem.Acquire(ctx, 1); err != nil {
		return ctx, func() {}, err
	}

	return context.WithValue(ctx, dispatchKey{}, l), func() { l.sem.Release(1) }, nil
}
