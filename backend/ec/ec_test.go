/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package ec_test

import (
	"os"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/juleastore/juleastore/backend"
	"github.com/juleastore/juleastore/backend/ec"
)

func TestEC(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ec")
}

var _ = Describe("Backend", func() {
	var (
		dir string
		b   *ec.Backend
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "ec-backend-")
		Expect(err).NotTo(HaveOccurred())
		b = ec.New(4, 2)
		Expect(b.Init(dir)).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("round-trips create, write, read and status", func() {
		h, err := b.Create("s", "c", "item1")
		Expect(err).NotTo(HaveOccurred())

		payload := []byte("the quick brown fox jumps over the lazy dog")
		n, err := b.Write(h, payload, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(uint64(len(payload))))

		st, err := b.Status(h, backend.StatusSize)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Size).To(Equal(uint64(len(payload))))

		buf := make([]byte, len(payload))
		n, err = b.Read(h, buf, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(uint64(len(payload))))
		Expect(buf).To(Equal(payload))
	})

	It("reconstructs a read after a parity shard file is lost", func() {
		h, err := b.Create("s", "c", "item2")
		Expect(err).NotTo(HaveOccurred())
		payload := []byte("erasure coded payload long enough to span shards")
		_, err = b.Write(h, payload, 0)
		Expect(err).NotTo(HaveOccurred())

		Expect(os.Remove(dir + "/s/c/item2/shard.4")).To(Succeed())

		buf := make([]byte, len(payload))
		n, err := b.Read(h, buf, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(uint64(len(payload))))
		Expect(buf).To(Equal(payload))
	})

	It("fails Open for an item that was never created", func() {
		_, err := b.Open("s", "c", "missing")
		Expect(err).To(HaveOccurred())
	})
})
