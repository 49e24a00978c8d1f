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

package pickplace_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/pickplace"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/standarderrors"
)

var _ = Describe("States and events", func() {
	It("parses every state by name", func() {
		for _, s := range pickplace.AllStates {
			parsed, err := pickplace.ParseState(string(s))
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(s))
		}

		_, err := pickplace.ParseState("homing")
		Expect(errors.Is(err, standarderrors.ErrUnknownState)).To(BeTrue())
	})

	It("knows which states belong to a cycle", func() {
		Expect(pickplace.IsCycleState(pickplace.StatePicking)).To(BeTrue())
		Expect(pickplace.IsCycleState(pickplace.StatePreIdle)).To(BeFalse())
		Expect(pickplace.IsCycleState(pickplace.StateIdle)).To(BeFalse())
		Expect(pickplace.IsCycleState(pickplace.StatePanic)).To(BeFalse())
	})

	It("gives every kind a distinct numeric code", func() {
		seen := map[int]pickplace.Kind{}
		for _, k := range pickplace.AllKinds {
			code := k.Code()
			Expect(code).To(BeNumerically(">", 0))
			Expect(seen).NotTo(HaveKey(code))
			seen[code] = k
		}
		Expect(pickplace.KindFail.Code()).To(Equal(7))
		Expect(pickplace.Kind("").Code()).To(BeZero())
	})

	It("rejects unknown kinds", func() {
		_, err := pickplace.ParseKind("teleport")
		Expect(errors.Is(err, standarderrors.ErrUnknownEventKind)).To(BeTrue())
	})

	It("keeps the kind of pick and place events that embed planning data", func() {
		plan := pickplace.PlanningEvent{PointOfInterest: "poi", OccupancyGrid: "grid"}

		var ev pickplace.Event = pickplace.PickEvent{PlanningEvent: plan, PreGrasp: "pre"}
		Expect(ev.Kind()).To(Equal(pickplace.KindPick))
		_, isPlanning := ev.(pickplace.PlanningEvent)
		Expect(isPlanning).To(BeFalse())

		ev = pickplace.PlaceEvent{PlanningEvent: plan}
		Expect(ev.Kind()).To(Equal(pickplace.KindPlace))
		Expect(ev.(pickplace.PlaceEvent).PointOfInterest).To(Equal("poi"))
	})
})
