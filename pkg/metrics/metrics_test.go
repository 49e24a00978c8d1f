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

package metrics

import (
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

type staticProvider struct {
	state string
}

func (p staticProvider) DebugSnapshot() interface{} {
	return map[string]string{"currentState": p.state}
}

var _ = Describe("Metrics", func() {
	It("counts transitions per edge", func() {
		IncTransition("m-1", "idle", "scanning")
		IncTransition("m-1", "idle", "scanning")
		IncTransition("m-1", "scanning", "panic")

		Expect(testutil.ToFloat64(transitionsTotal.WithLabelValues("m-1", "idle", "scanning"))).To(Equal(2.0))
		Expect(testutil.ToFloat64(transitionsTotal.WithLabelValues("m-1", "scanning", "panic"))).To(Equal(1.0))
	})

	It("maps states onto the gauge", func() {
		UpdateCurrentState("m-2", "placing")
		Expect(testutil.ToFloat64(currentState.WithLabelValues("m-2"))).To(Equal(6.0))

		UpdateCurrentState("m-2", "homing")
		Expect(testutil.ToFloat64(currentState.WithLabelValues("m-2"))).To(Equal(-1.0))
	})

	It("starts controller series at zero", func() {
		InitControllerMetrics("m-3")
		Expect(testutil.ToFloat64(faultsTotal.WithLabelValues("m-3", "hard"))).To(BeZero())

		IncFault("m-3", "hard")
		UpdateErrorLogSize("m-3", 4)
		IncCompletedCycle("m-3")
		AddStalledTime("m-3", 1.5)

		Expect(testutil.ToFloat64(faultsTotal.WithLabelValues("m-3", "hard"))).To(Equal(1.0))
		Expect(testutil.ToFloat64(errorLogSize.WithLabelValues("m-3"))).To(Equal(4.0))
		Expect(testutil.ToFloat64(cyclesCompletedTotal.WithLabelValues("m-3"))).To(Equal(1.0))
		Expect(testutil.ToFloat64(stalledSeconds.WithLabelValues("m-3"))).To(Equal(1.5))
	})

	It("observes dispatch durations per event kind", func() {
		ObserveDispatchDuration("m-4", "scan", 3*time.Millisecond)
		ObserveDispatchDuration("m-4", "scan", 5*time.Millisecond)

		observer, err := dispatchDuration.GetMetricWithLabelValues("m-4", "scan")
		Expect(err).NotTo(HaveOccurred())

		var m dto.Metric
		Expect(observer.(prometheus.Summary).Write(&m)).To(Succeed())
		Expect(m.GetSummary().GetSampleCount()).To(Equal(uint64(2)))
		Expect(m.GetSummary().GetSampleSum()).To(Equal(8.0))
	})

	Describe("Handler", func() {
		It("serves the registered metrics", func() {
			IncIgnoredEvent("m-5", "panic", "start")

			rec := httptest.NewRecorder()
			Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`pickplace_core_ignored_events_total{event="start",instance="m-5",state="panic"} 1`))
		})

		It("serves the registered controller snapshots", func() {
			RegisterSnapshotProvider("m-6", staticProvider{state: "idle"})
			DeferCleanup(UnregisterSnapshotProvider, "m-6")

			rec := httptest.NewRecorder()
			Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/controllers", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var body map[string]map[string]string
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("m-6", HaveKeyWithValue("currentState", "idle")))
		})

		It("rejects writes to the snapshot endpoint", func() {
			rec := httptest.NewRecorder()
			Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/controllers", nil))
			Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed))
		})
	})
})
