// Package buntdb implements the Data backend contract against a single
// embedded github.com/tidwall/buntdb database file: every item is one
// key holding its whole byte content, read and rewritten in full on
// each Read/Write. It suits small objects and test/dev deployments
// where a separate storage daemon isn't worth running.
/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package buntdb

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"

	"github.com/juleastore/juleastore/backend"
)

func init() {
	backend.RegisterData("buntdb", func() backend.Data { return &Backend{} })
}

// Backend wraps one *buntdb.DB. buntdb already serializes all
// transactions internally; the extra mutex here only protects the
// read-modify-write sequence WRITE needs across its own two
// transactions.
type Backend struct {
	db *buntdb.DB
	mu sync.Mutex
}

type item struct {
	key string
}

func (b *Backend) Init(path string) error {
	db, err := buntdb.Open(path)
	if err != nil {
		return errors.Wrapf(err, "buntdb: open %s", path)
	}
	b.db = db
	return nil
}

func (b *Backend) Fini() {
	if b.db != nil {
		_ = b.db.Close()
	}
}

func (b *Backend) ThreadInit() {}
func (b *Backend) ThreadFini() {}

func (b *Backend) key(store, collection, name string) string {
	return fmt.Sprintf("%s\x00%s\x00%s", store, collection, name)
}

func (b *Backend) Create(store, collection, name string) (backend.Item, error) {
	key := b.key(store, collection, name)
	err := b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, "", nil)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "buntdb: create %s", key)
	}
	return &item{key: key}, nil
}

func (b *Backend) Open(store, collection, name string) (backend.Item, error) {
	key := b.key(store, collection, name)
	err := b.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(key)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "buntdb: open %s", key)
	}
	return &item{key: key}, nil
}

func (b *Backend) Close(backend.Item) {}

func (b *Backend) Delete(handle backend.Item) error {
	it := handle.(*item)
	err := b.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(it.key)
		return err
	})
	if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
		return errors.Wrapf(err, "buntdb: delete %s", it.key)
	}
	return nil
}

func (b *Backend) Status(handle backend.Item, flags backend.StatusFlag) (backend.Status, error) {
	it := handle.(*item)
	st := backend.Status{Flags: flags}
	err := b.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(it.key)
		if err != nil {
			return err
		}
		if flags&backend.StatusSize != 0 {
			st.Size = uint64(len(v))
		}
		return nil
	})
	if err != nil {
		return backend.Status{}, errors.Wrapf(err, "buntdb: status %s", it.key)
	}
	// buntdb keeps no per-key modification time; report process start as
	// a stand-in so STATUS never returns the zero time.
	if flags&backend.StatusModificationTime != 0 {
		st.ModificationTime = processStart
	}
	return st, nil
}

// Sync durably persists the on-disk append-only file, matching the
// engine's expectation that SAFETY_STORAGE flushes durably.
func (b *Backend) Sync(backend.Item) error {
	return b.db.Shrink()
}

func (b *Backend) Read(handle backend.Item, buf []byte, offset uint64) (uint64, error) {
	it := handle.(*item)
	var v string
	err := b.db.View(func(tx *buntdb.Tx) error {
		var gerr error
		v, gerr = tx.Get(it.key)
		return gerr
	})
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "buntdb: read %s", it.key)
	}
	if offset >= uint64(len(v)) {
		return 0, nil
	}
	n := copy(buf, v[offset:])
	return uint64(n), nil
}

func (b *Backend) Write(handle backend.Item, buf []byte, offset uint64) (uint64, error) {
	it := handle.(*item)
	b.mu.Lock()
	defer b.mu.Unlock()

	var current []byte
	err := b.db.View(func(tx *buntdb.Tx) error {
		v, gerr := tx.Get(it.key)
		if gerr != nil {
			if errors.Is(gerr, buntdb.ErrNotFound) {
				return nil
			}
			return gerr
		}
		current = []byte(v)
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "buntdb: read-before-write %s", it.key)
	}

	need := offset + uint64(len(buf))
	if uint64(len(current)) < need {
		grown := make([]byte, need)
		copy(grown, current)
		current = grown
	}
	copy(current[offset:], buf)

	err = b.db.Update(func(tx *buntdb.Tx) error {
		_, _, serr := tx.Set(it.key, string(current), nil)
		return serr
	})
	if err != nil {
		return 0, errors.Wrapf(err, "buntdb: write %s", it.key)
	}
	return uint64(len(buf)), nil
}

var processStart = time.Now()
