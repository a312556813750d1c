// Package posix implements a juleastore data backend over a local
// filesystem tree: one regular file per item, named by its cache key.
// An in-memory cuckoo filter of known keys short-circuits Open on items
// that were never created, and a startup tree walk seeds that
// filter from whatever the path already contains.
/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package posix

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	"github.com/seiflotfy/cuckoofilter"

	"github.com/juleastore/juleastore/backend"
)

func init() {
	backend.RegisterData("posix", func() backend.Data { return &Backend{} })
}

// Backend is a filesystem-backed data backend. It is shared immutably
// across all workers once Init succeeds.
type Backend struct {
	root string

	mu     sync.Mutex
	filter *cuckoofilter.CuckooFilter
}

// item is the handle Create/Open hand back to the cache.
type item struct {
	path string
	f    *os.File
}

func key(store, collection, name string) string {
	return store + "." + collection + "." + name
}

// Init roots the backend at path, creating it if necessary, and warms
// the existence filter from whatever is already on disk.
func (b *Backend) Init(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.Wrapf(err, "posix: create root %s", path)
	}
	b.root = path
	b.filter = cuckoofilter.NewCuckooFilter(1 << 16)

	err := godirwalk.Walk(path, &godirwalk.Options{
		Callback: func(p string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			rel, rerr := filepath.Rel(path, p)
			if rerr != nil {
				return nil
			}
			b.filter.InsertUnique([]byte(rel))
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return errors.Wrap(err, "posix: warm existence filter")
	}
	return nil
}

func (b *Backend) Fini()       {}
func (b *Backend) ThreadInit() {}
func (b *Backend) ThreadFini() {}

func (b *Backend) path(store, collection, name string) string {
	return filepath.Join(b.root, key(store, collection, name))
}

func (b *Backend) Create(store, collection, name string) (backend.Item, error) {
	p := b.path(store, collection, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, errors.Wrap(err, "posix: create parent dir")
	}
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "posix: create")
	}
	b.mu.Lock()
	b.filter.InsertUnique([]byte(key(store, collection, name)))
	b.mu.Unlock()
	return &item{path: p, f: f}, nil
}

// Open short-circuits on a cuckoo-filter miss to skip a syscall for keys
// this process never created or saw on its startup walk; a hit still
// falls through to the real open, since the filter is probabilistic.
func (b *Backend) Open(store, collection, name string) (backend.Item, error) {
	k := key(store, collection, name)
	b.mu.Lock()
	known := b.filter.Lookup([]byte(k))
	b.mu.Unlock()
	if !known {
		return nil, errors.Wrap(os.ErrNotExist, "posix: open")
	}
	p := b.path(store, collection, name)
	f, err := os.OpenFile(p, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "posix: open")
	}
	return &item{path: p, f: f}, nil
}

func (b *Backend) Close(handle backend.Item) {
	it := handle.(*item)
	it.f.Close()
}

func (b *Backend) Delete(handle backend.Item) error {
	it := handle.(*item)
	return errors.Wrap(os.Remove(it.path), "posix: delete")
}

func (b *Backend) Status(handle backend.Item, flags backend.StatusFlag) (backend.Status, error) {
	it := handle.(*item)
	fi, err := it.f.Stat()
	if err != nil {
		return backend.Status{}, errors.Wrap(err, "posix: stat")
	}
	st := backend.Status{Flags: flags}
	if flags&backend.StatusSize != 0 {
		st.Size = uint64(fi.Size())
	}
	if flags&backend.StatusModificationTime != 0 {
		st.ModificationTime = fi.ModTime()
	}
	return st, nil
}

func (b *Backend) Sync(handle backend.Item) error {
	it := handle.(*item)
	return errors.Wrap(it.f.Sync(), "posix: sync")
}

func (b *Backend) Read(handle backend.Item, buf []byte, offset uint64) (uint64, error) {
	it := handle.(*item)
	n, err := it.f.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return uint64(n), errors.Wrap(err, "posix: read")
	}
	return uint64(n), nil
}

func (b *Backend) Write(handle backend.Item, buf []byte, offset uint64) (uint64, error) {
	it := handle.(*item)
	n, err := it.f.WriteAt(buf, int64(offset))
	if err != nil {
		return uint64(n), errors.Wrap(err, "posix: write")
	}
	return uint64(n), nil
}
