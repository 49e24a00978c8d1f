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

package control_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/control"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/persistence"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/pickplace"
)

type countingObserver struct {
	pickplace.NopObserver
	faults int
}

func (o *countingObserver) FaultRecorded(context.Context, pickplace.ErrorRecord) {
	o.faults++
}

var _ = Describe("Journal", func() {
	var (
		ctx   context.Context
		store *persistence.ErrorLogStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		store, err = persistence.Open(ctx, persistence.InMemory)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)
	})

	It("forwards to the next observer and replays changes in order", func() {
		next := &countingObserver{}
		journal := control.NewJournal(next)

		a := pickplace.ErrorRecord{ID: "a", ErrorCode: 20, State: pickplace.StatePanic}
		b := pickplace.ErrorRecord{ID: "b", ErrorCode: 21, State: pickplace.StatePreIdle}
		journal.FaultRecorded(ctx, a)
		journal.ErrorLogCleared(ctx, []pickplace.ErrorRecord{a})
		journal.FaultRecorded(ctx, b)
		Expect(journal.Pending()).To(Equal(3))
		Expect(next.faults).To(Equal(2))

		Expect(journal.Flush(ctx, store)).To(Succeed())
		Expect(journal.Pending()).To(BeZero())

		records, err := store.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].ID).To(Equal("b"))
	})

	It("skips empty clears", func() {
		journal := control.NewJournal(nil)
		journal.ErrorLogCleared(ctx, nil)
		Expect(journal.Pending()).To(BeZero())
	})
})
