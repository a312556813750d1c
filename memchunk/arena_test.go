/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package memchunk_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/juleastore/juleastore/memchunk"
)

func TestArena(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "memchunk")
}

var _ = Describe("Arena", func() {
	It("bump-allocates sub-buffers until exhausted", func() {
		a := memchunk.New(16)
		b1 := a.Get(10)
		Expect(b1).To(HaveLen(10))
		b2 := a.Get(6)
		Expect(b2).To(HaveLen(6))
		Expect(a.Get(1)).To(BeNil())
	})

	It("reset reclaims the full capacity", func() {
		a := memchunk.New(8)
		Expect(a.Get(8)).NotTo(BeNil())
		Expect(a.Get(1)).To(BeNil())
		a.Reset()
		Expect(a.Get(8)).NotTo(BeNil())
	})

	It("hands out the full capacity again after Reset, reusing the backing array", func() {
		a := memchunk.New(4)
		first := a.Get(4)
		for i := range first {
			first[i] = 0xAB
		}
		a.Reset()
		second := a.Get(4)
		// same backing array, caller is responsible for not reading `first`
		// after Reset; verify the arena itself permits a fresh 4-byte Get.
		Expect(second).To(HaveLen(4))
	})
})
