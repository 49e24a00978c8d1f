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
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/control"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/faults"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/persistence"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/pickplace"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/standarderrors"
)

type recordingTracker struct {
	mu     sync.Mutex
	states []pickplace.State
}

func (t *recordingTracker) Progress(state pickplace.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states = append(t.states, state)
}

func (t *recordingTracker) States() []pickplace.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]pickplace.State(nil), t.states...)
}

// failingStore fails every write
type failingStore struct{}

func (failingStore) Append(context.Context, pickplace.ErrorRecord) error { return errors.New("disk full") }
func (failingStore) Delete(context.Context, []string) (int64, error)      { return 0, errors.New("disk full") }

var _ = Describe("EventLoop", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		store   *persistence.ErrorLogStore
		journal *control.Journal
		tracker *recordingTracker
		loop    *control.EventLoop
		done    chan error
	)

	newLoop := func(restored []pickplace.ErrorRecord, st control.ErrorLogStore) *control.EventLoop {
		journal = control.NewJournal(nil)
		controller := pickplace.NewController(ctx, pickplace.ControllerConfig{
			ID:               "loop-test",
			ErrorLog:         restored,
			Observer:         journal,
			RecoveryInterval: time.Millisecond,
		}, zap.NewNop().Sugar())

		return control.NewEventLoop(controller, control.LoopConfig{
			Store:   st,
			Journal: journal,
			Tracker: tracker,
		})
	}

	run := func() {
		done = make(chan error, 1)
		go func() { done <- loop.Execute(ctx) }()
		Eventually(loop.Running).Should(BeTrue())
	}

	submit := func(events ...pickplace.Event) {
		GinkgoHelper()
		for _, ev := range events {
			Expect(loop.Submit(ctx, ev)).To(Succeed())
		}
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		tracker = &recordingTracker{}

		var err error
		store, err = persistence.Open(ctx, persistence.InMemory)
		Expect(err).NotTo(HaveOccurred())

		loop = newLoop(nil, store)
	})

	AfterEach(func() {
		cancel()
		if done != nil {
			Eventually(done).Should(Receive(BeNil()))
		}
		Expect(store.Close()).To(Succeed())
	})

	It("dispatches events in order and reports progress", func() {
		run()
		submit(pickplace.StartEvent{}, pickplace.StartEvent{}, pickplace.ScanEvent{Payload: "p"})

		Expect(loop.Controller().CurrentState()).To(Equal(pickplace.StatePickPlanning))
		Expect(tracker.States()).To(Equal([]pickplace.State{
			pickplace.StatePreIdle,
			pickplace.StateIdle,
			pickplace.StateScanning,
			pickplace.StatePickPlanning,
		}))
	})

	It("persists hard faults and removes them when cleared", func() {
		run()
		submit(pickplace.StartEvent{}, pickplace.StartEvent{},
			pickplace.FailEvent{ErrorCode: 3}, pickplace.FailEvent{ErrorCode: 20})

		records, err := store.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].ErrorCode).To(Equal(20))
		Expect(journal.Pending()).To(BeZero())

		cleared, err := loop.ClearErrorLog(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(cleared).To(HaveLen(1))

		records, err = store.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(BeEmpty())
	})

	It("does not persist transient faults", func() {
		run()
		submit(pickplace.StartEvent{}, pickplace.StartEvent{},
			pickplace.FailEvent{ErrorCode: 3}, pickplace.FailEvent{ErrorCode: faults.TransientErrorCode})

		Expect(loop.Controller().CurrentState()).To(Equal(pickplace.StatePreIdle))
		records, err := store.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(BeEmpty())
	})

	It("restores a persisted log so the start gate stays closed", func() {
		Expect(store.Append(ctx, pickplace.ErrorRecord{ID: "r1", ErrorCode: 20, State: pickplace.StatePanic})).To(Succeed())
		restored, err := store.List(ctx)
		Expect(err).NotTo(HaveOccurred())

		loop = newLoop(restored, store)
		run()
		submit(pickplace.StartEvent{})

		Expect(loop.Controller().CurrentState()).To(Equal(pickplace.StatePreIdle))
	})

	It("turns coded collaborator errors into fail events", func() {
		run()
		submit(pickplace.StartEvent{}, pickplace.StartEvent{})

		Expect(loop.SubmitFault(ctx, faults.NewFault(42, "lidar"))).To(Succeed())
		Expect(loop.Controller().CurrentState()).To(Equal(pickplace.StatePanic))

		Expect(loop.SubmitFault(ctx, errors.New("no code"))).To(HaveOccurred())
	})

	It("lets a transient collaborator fault recover without an error record", func() {
		run()
		submit(pickplace.StartEvent{}, pickplace.StartEvent{})

		Expect(loop.SubmitFault(ctx, faults.NewFault(faults.TransientErrorCode, "gripper"))).To(Succeed())
		Expect(loop.Controller().CurrentState()).To(Equal(pickplace.StatePanic))
		Expect(loop.SubmitFault(ctx, &faults.CodeError{Code: faults.TransientErrorCode})).To(Succeed())

		Expect(loop.Controller().CurrentState()).To(Equal(pickplace.StatePreIdle))
		Expect(loop.Controller().ErrorLog()).To(BeEmpty())
	})

	It("keeps changes queued when the store fails", func() {
		loop = newLoop(nil, failingStore{})
		run()
		submit(pickplace.StartEvent{}, pickplace.StartEvent{}, pickplace.FailEvent{ErrorCode: 3})

		err := loop.Submit(ctx, pickplace.FailEvent{ErrorCode: 20})
		Expect(err).To(MatchError(ContainSubstring("persist error log")))
		Expect(loop.Controller().CurrentState()).To(Equal(pickplace.StatePreIdle))
		Expect(journal.Pending()).To(Equal(1))
	})

	It("serves many producers", func() {
		run()
		submit(pickplace.StartEvent{}, pickplace.StartEvent{})

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				Expect(loop.Post(ctx, pickplace.ScanEvent{})).To(Succeed())
			}()
		}
		wg.Wait()

		Eventually(func() int { return len(tracker.States()) }).Should(Equal(13))
		Expect(loop.Controller().CurrentState()).To(Equal(pickplace.StatePickPlanning))
	})

	It("rejects events when it is not running", func() {
		Expect(loop.Submit(ctx, pickplace.StartEvent{})).To(MatchError(standarderrors.ErrLoopStopped))

		run()
		cancel()
		Eventually(done).Should(Receive(BeNil()))
		done = nil

		Expect(loop.Submit(context.Background(), pickplace.StartEvent{})).To(MatchError(standarderrors.ErrLoopStopped))
		Expect(loop.Execute(context.Background())).To(MatchError(standarderrors.ErrLoopStopped))
	})

	It("rejects a nil event", func() {
		run()
		Expect(errors.Is(loop.Submit(ctx, nil), standarderrors.ErrUnknownEventKind)).To(BeTrue())
	})
})
