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

package scenario_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/pickplace"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/scenario"
)

// direct dispatches on the controller without a loop
type direct struct {
	*pickplace.Controller
}

func (d direct) Submit(ctx context.Context, ev pickplace.Event) error {
	return d.Dispatch(ctx, ev)
}

var _ = Describe("Scenario", func() {
	var (
		ctx    context.Context
		runner *scenario.Runner
		target direct
	)

	BeforeEach(func() {
		ctx = context.Background()
		target = direct{pickplace.NewController(ctx, pickplace.ControllerConfig{ID: "scenario"}, zap.NewNop().Sugar())}
		runner = scenario.NewRunner(target)
	})

	DescribeTable("runs the shipped scenarios",
		func(path string, final pickplace.State) {
			sc, err := scenario.Load(path)
			Expect(err).NotTo(HaveOccurred())

			results, err := runner.Run(ctx, sc)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(len(sc.Steps)))
			Expect(target.CurrentState()).To(Equal(final))
		},
		Entry("full cycle", "../../configs/scenarios/full_cycle.yaml", pickplace.StateIdle),
		Entry("hard fault", "../../configs/scenarios/hard_fault.yaml", pickplace.StateIdle),
	)

	It("builds refined events from the step fields", func() {
		sc, err := scenario.Parse([]byte(`
steps:
  - event: pick
    pointOfInterest: poi
    preGrasp: pre
  - event: fail
    errorCode: 11
    faultState: picking
`))
		Expect(err).NotTo(HaveOccurred())

		ev, err := sc.Steps[0].Event()
		Expect(err).NotTo(HaveOccurred())
		Expect(ev).To(Equal(pickplace.PickEvent{
			PlanningEvent: pickplace.PlanningEvent{PointOfInterest: "poi"},
			PreGrasp:      "pre",
		}))

		ev, err = sc.Steps[1].Event()
		Expect(err).NotTo(HaveOccurred())
		Expect(ev).To(Equal(pickplace.FailEvent{ErrorCode: 11, State: pickplace.StatePicking}))
	})

	It("stops at the first unexpected state", func() {
		sc, err := scenario.Parse([]byte(`
name: wrong expectation
steps:
  - event: start
    expect: scanning
  - event: start
`))
		Expect(err).NotTo(HaveOccurred())

		results, err := runner.Run(ctx, sc)
		Expect(errors.Is(err, scenario.ErrExpectationFailed)).To(BeTrue())
		Expect(results).To(HaveLen(1))
		Expect(results[0].State).To(Equal(pickplace.StateIdle))
	})

	DescribeTable("rejects invalid scripts",
		func(doc string) {
			_, err := scenario.Parse([]byte(doc))
			Expect(err).To(HaveOccurred())
		},
		Entry("unknown event", "steps:\n  - event: teleport\n"),
		Entry("unknown action", "steps:\n  - action: reboot\n"),
		Entry("empty step", "steps:\n  - expect: idle\n"),
		Entry("event and action", "steps:\n  - event: start\n    action: clear_error_log\n"),
		Entry("unknown state", "steps:\n  - event: start\n    expect: homing\n"),
		Entry("unknown field", "steps:\n  - event: start\n    speed: 3\n"),
	)
})
