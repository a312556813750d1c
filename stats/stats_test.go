/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package stats_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/juleastore/juleastore/stats"
)

func TestStats(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "stats")
}

var _ = Describe("Global", func() {
	It("adds a local accumulator in once per Fold call", func() {
		reg := prometheus.NewRegistry()
		g := stats.NewGlobal(reg)

		l := &stats.Local{}
		l.AddBytesWritten(1000)
		l.AddFilesCreated(2)

		g.Fold(l)
		snap := g.Snapshot()
		Expect(snap.BytesWritten).To(BeEquivalentTo(1000))
		Expect(snap.FilesCreated).To(BeEquivalentTo(2))

		g.Fold(l)
		snap = g.Snapshot()
		Expect(snap.BytesWritten).To(BeEquivalentTo(2000))
	})

	It("reports the eight counters in the fixed wire order", func() {
		c := stats.Counters{
			FilesCreated: 1, FilesDeleted: 2, FilesStated: 3, Sync: 4,
			BytesRead: 5, BytesWritten: 6, BytesReceived: 7, BytesSent: 8,
		}
		Expect(c.Values()).To(Equal([8]uint64{1, 2, 3, 4, 5, 6, 7, 8}))
	})
})
