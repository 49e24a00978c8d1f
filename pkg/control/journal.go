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

package control

import (
	"context"
	"fmt"
	"sync"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/pickplace"
)

// ErrorLogStore persists the error log
type ErrorLogStore interface {
	Append(ctx context.Context, record pickplace.ErrorRecord) error
	Delete(ctx context.Context, ids []string) (int64, error)
}

type journalEntry struct {
	appended *pickplace.ErrorRecord
	cleared  []pickplace.ErrorRecord
}

// Journal is the controller's observer. It forwards everything to next and
// queues error log changes, which the loop writes to the store after the
// dispatch has finished, so no I/O happens inside a reaction.
type Journal struct {
	next pickplace.Observer

	mu      sync.Mutex
	pending []journalEntry
}

// NewJournal creates a journal forwarding to next, which may be nil
func NewJournal(next pickplace.Observer) *Journal {
	if next == nil {
		next = pickplace.NopObserver{}
	}
	return &Journal{next: next}
}

func (j *Journal) PickRequested(ctx context.Context, request pickplace.PickRequest) {
	j.next.PickRequested(ctx, request)
}

func (j *Journal) PlaceRequested(ctx context.Context, request pickplace.PlaceRequest) {
	j.next.PlaceRequested(ctx, request)
}

func (j *Journal) CycleCompleted(ctx context.Context, completion pickplace.Completion) {
	j.next.CycleCompleted(ctx, completion)
}

func (j *Journal) FaultRecorded(ctx context.Context, record pickplace.ErrorRecord) {
	j.mu.Lock()
	j.pending = append(j.pending, journalEntry{appended: &record})
	j.mu.Unlock()

	j.next.FaultRecorded(ctx, record)
}

func (j *Journal) ErrorLogCleared(ctx context.Context, cleared []pickplace.ErrorRecord) {
	if len(cleared) > 0 {
		j.mu.Lock()
		j.pending = append(j.pending, journalEntry{cleared: cleared})
		j.mu.Unlock()
	}

	j.next.ErrorLogCleared(ctx, cleared)
}

// Pending returns the number of changes not yet written
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Flush writes the queued changes in order. On error the failed change and
// everything after it stay queued for the next flush.
func (j *Journal) Flush(ctx context.Context, store ErrorLogStore) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for len(j.pending) > 0 {
		entry := j.pending[0]

		if entry.appended != nil {
			if err := store.Append(ctx, *entry.appended); err != nil {
				return err
			}
		} else {
			ids := make([]string, 0, len(entry.cleared))
			for _, r := range entry.cleared {
				ids = append(ids, r.ID)
			}
			if _, err := store.Delete(ctx, ids); err != nil {
				return fmt.Errorf("delete %d cleared record(s): %w", len(ids), err)
			}
		}

		j.pending = j.pending[1:]
	}
	return nil
}

var _ pickplace.Observer = (*Journal)(nil)
