/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package s3

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestS3(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "s3")
}

var _ = Describe("Backend", func() {
	It("rejects a storage path with no bucket", func() {
		b := &Backend{}
		err := b.Init("")
		Expect(err).To(HaveOccurred())
	})

	It("builds namespaced keys under the configured prefix", func() {
		b := &Backend{bucket: "bkt", prefix: "data/"}
		Expect(b.key("store1", "coll1", "item1")).To(Equal("data/store1/coll1/item1"))
	})

	It("defaults to no prefix when the path names only a bucket", func() {
		b := &Backend{bucket: "bkt"}
		Expect(b.key("s", "c", "i")).To(Equal("s/c/i"))
	})
})
