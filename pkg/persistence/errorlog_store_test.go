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

package persistence_test

import (
	"bytes"
	"context"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/persistence"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/pickplace"
)

var _ = Describe("ErrorLogStore", func() {
	var (
		ctx   context.Context
		store *persistence.ErrorLogStore
		at    time.Time
	)

	record := func(id string, code int) pickplace.ErrorRecord {
		return pickplace.ErrorRecord{
			ID:        id,
			ErrorCode: code,
			CycleID:   "cycle-1",
			State:     pickplace.StatePanic,
			Timestamp: at,
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		at = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

		var err error
		store, err = persistence.Open(ctx, persistence.InMemory)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)
	})

	It("lists records in the order they were appended", func() {
		Expect(store.Append(ctx, record("b", 20))).To(Succeed())
		Expect(store.Append(ctx, record("a", 21))).To(Succeed())

		records, err := store.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
		Expect(records[0].ID).To(Equal("b"))
		Expect(records[1].ErrorCode).To(Equal(21))
		Expect(records[1].State).To(Equal(pickplace.StatePanic))
		Expect(records[1].Timestamp.Equal(at)).To(BeTrue())
	})

	It("ignores a record appended twice", func() {
		Expect(store.Append(ctx, record("a", 20))).To(Succeed())
		Expect(store.Append(ctx, record("a", 20))).To(Succeed())

		records, err := store.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
	})

	It("returns an empty list for an empty log", func() {
		records, err := store.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).NotTo(BeNil())
		Expect(records).To(BeEmpty())
	})

	It("deletes only the given records", func() {
		Expect(store.Append(ctx, record("a", 20))).To(Succeed())
		Expect(store.Append(ctx, record("b", 21))).To(Succeed())
		Expect(store.Append(ctx, record("c", 22))).To(Succeed())

		n, err := store.Delete(ctx, []string{"a", "c", "unknown"})
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(2)))

		records, err := store.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].ID).To(Equal("b"))

		n, err = store.Delete(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	It("clears everything", func() {
		Expect(store.Append(ctx, record("a", 20))).To(Succeed())
		Expect(store.Append(ctx, record("b", 21))).To(Succeed())

		n, err := store.Clear(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(2)))

		records, err := store.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(BeEmpty())
	})

	It("exports the log as JSON", func() {
		Expect(store.Append(ctx, record("a", 20))).To(Succeed())

		var buf bytes.Buffer
		Expect(store.Export(ctx, &buf)).To(Succeed())

		var exported []map[string]interface{}
		Expect(json.Unmarshal(buf.Bytes(), &exported)).To(Succeed())
		Expect(exported).To(HaveLen(1))
		Expect(exported[0]).To(HaveKeyWithValue("errorCode", BeNumerically("==", 20)))
		Expect(exported[0]).To(HaveKeyWithValue("state", "panic"))
	})

	It("keeps records across reopening a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "errors.db")

		first, err := persistence.Open(ctx, path)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Append(ctx, record("a", 20))).To(Succeed())
		Expect(first.Close()).To(Succeed())

		second, err := persistence.Open(ctx, path)
		Expect(err).NotTo(HaveOccurred())
		defer second.Close()

		records, err := second.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].CycleID).To(Equal("cycle-1"))
	})
})
