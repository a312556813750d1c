/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package buntdb_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/juleastore/juleastore/backend"
	"github.com/juleastore/juleastore/backend/buntdb"
)

func TestBuntdb(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "buntdb")
}

var _ = Describe("Backend", func() {
	var (
		dir string
		b   *buntdb.Backend
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "buntdb-backend-")
		Expect(err).NotTo(HaveOccurred())
		b = &buntdb.Backend{}
		Expect(b.Init(filepath.Join(dir, "store.db"))).To(Succeed())
	})

	AfterEach(func() {
		b.Fini()
		os.RemoveAll(dir)
	})

	It("round-trips create, write, read, status and delete", func() {
		h, err := b.Create("s", "c", "item1")
		Expect(err).NotTo(HaveOccurred())

		n, err := b.Write(h, []byte("hello world"), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(uint64(11)))

		buf := make([]byte, 5)
		n, err = b.Read(h, buf, 6)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(uint64(5)))
		Expect(string(buf)).To(Equal("world"))

		st, err := b.Status(h, backend.StatusSize)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Size).To(Equal(uint64(11)))

		Expect(b.Delete(h)).To(Succeed())
		_, err = b.Open("s", "c", "item1")
		Expect(err).To(HaveOccurred())
	})

	It("fails Open for a key that was never created", func() {
		_, err := b.Open("s", "c", "missing")
		Expect(err).To(HaveOccurred())
	})

	It("grows the value when a write lands past the current end", func() {
		h, err := b.Create("s", "c", "item2")
		Expect(err).NotTo(HaveOccurred())
		_, err = b.Write(h, []byte("abc"), 0)
		Expect(err).NotTo(HaveOccurred())
		_, err = b.Write(h, []byte("xyz"), 10)
		Expect(err).NotTo(HaveOccurred())

		buf := make([]byte, 13)
		n, err := b.Read(h, buf, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(uint64(13)))
		Expect(string(buf[10:13])).To(Equal("xyz"))
	})
})
