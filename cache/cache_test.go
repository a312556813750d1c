/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package cache_test

import (
	"errors"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/juleastore/juleastore/backend"
	"github.com/juleastore/juleastore/cache"
)

func TestCache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "cache")
}

type fakeItem struct{ name string }

type fakeBackend struct {
	opens, creates, closes int
	failOpen               bool
}

func (f *fakeBackend) Init(string) error { return nil }
func (f *fakeBackend) Fini()             {}
func (f *fakeBackend) ThreadInit()       {}
func (f *fakeBackend) ThreadFini()       {}

func (f *fakeBackend) Create(_, _, item string) (backend.Item, error) {
	f.creates++
	return &fakeItem{name: item}, nil
}

func (f *fakeBackend) Open(_, _, item string) (backend.Item, error) {
	f.opens++
	if f.failOpen {
		return nil, errors.New("boom")
	}
	return &fakeItem{name: item}, nil
}

func (f *fakeBackend) Close(backend.Item) { f.closes++ }
func (f *fakeBackend) Delete(backend.Item) error { return nil }
func (f *fakeBackend) Status(backend.Item, backend.StatusFlag) (backend.Status, error) {
	return backend.Status{}, nil
}
func (f *fakeBackend) Sync(backend.Item) error { return nil }
func (f *fakeBackend) Read(backend.Item, []byte, uint64) (uint64, error)  { return 0, nil }
func (f *fakeBackend) Write(backend.Item, []byte, uint64) (uint64, error) { return 0, nil }

var _ = Describe("Cache", func() {
	It("opens once and reuses the handle on a second Open", func() {
		fb := &fakeBackend{}
		c := cache.New(fb)

		h1, err := c.Open("s", "coll", "x")
		Expect(err).NotTo(HaveOccurred())
		h2, err := c.Open("s", "coll", "x")
		Expect(err).NotTo(HaveOccurred())
		Expect(h1).To(BeIdenticalTo(h2))
		Expect(fb.opens).To(Equal(1))
	})

	It("closes exactly once on explicit Close", func() {
		fb := &fakeBackend{}
		c := cache.New(fb)
		_, _ = c.Create("s", "coll", "x")
		c.Close("s", "coll", "x")
		c.Close("s", "coll", "x") // no-op, key already gone
		Expect(fb.closes).To(Equal(1))
	})

	It("closes every remaining handle on Destroy, exactly once each", func() {
		fb := &fakeBackend{}
		c := cache.New(fb)
		_, _ = c.Create("s", "c", "a")
		_, _ = c.Create("s", "c", "b")
		c.Destroy()
		Expect(fb.closes).To(Equal(2))
		Expect(c.Len()).To(Equal(0))
	})

	It("does not insert a cache entry when Open fails", func() {
		fb := &fakeBackend{failOpen: true}
		c := cache.New(fb)
		_, err := c.Open("s", "c", "x")
		Expect(err).To(HaveOccurred())
		Expect(c.Len()).To(Equal(0))
	})
})
