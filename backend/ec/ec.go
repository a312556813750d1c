// Package ec implements a local, erasure-coded Data backend: every
// item's full content is split into N data shards plus M parity
// shards via github.com/klauspost/reedsolomon, and each shard is
// stored as its own file. A Read that finds a missing or truncated
// data shard reconstructs it from the survivors before answering,
// trading CPU for tolerance of up to M lost shard files per item.
/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package ec

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/reedsolomon"
	"github.com/pkg/errors"

	"github.com/juleastore/juleastore/backend"
)

func init() {
	backend.RegisterData("ec", func() backend.Data { return New(4, 2) })
}

// Backend stripes every item across dataShards+parityShards files
// under one root directory.
type Backend struct {
	root         string
	dataShards   int
	parityShards int
	enc          reedsolomon.Encoder

	mu sync.Mutex
}

// New constructs an unopened backend with the given shard counts; Init
// still must be called to bind it to a root directory.
func New(dataShards, parityShards int) *Backend {
	return &Backend{dataShards: dataShards, parityShards: parityShards}
}

type item struct {
	dir string
}

func (b *Backend) Init(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.Wrapf(err, "ec: mkdir %s", path)
	}
	enc, err := reedsolomon.New(b.dataShards, b.parityShards)
	if err != nil {
		return errors.Wrap(err, "ec: construct encoder")
	}
	b.root = path
	b.enc = enc
	return nil
}

func (b *Backend) Fini()       {}
func (b *Backend) ThreadInit() {}
func (b *Backend) ThreadFini() {}

func (b *Backend) itemDir(store, collection, name string) string {
	return filepath.Join(b.root, store, collection, name)
}

func (b *Backend) Create(store, collection, name string) (backend.Item, error) {
	dir := b.itemDir(store, collection, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "ec: create %s", dir)
	}
	if err := b.writeShards(dir, nil); err != nil {
		return nil, err
	}
	return &item{dir: dir}, nil
}

func (b *Backend) Open(store, collection, name string) (backend.Item, error) {
	dir := b.itemDir(store, collection, name)
	if _, err := os.Stat(b.sizePath(dir)); err != nil {
		return nil, errors.Wrapf(os.ErrNotExist, "ec: open %s", dir)
	}
	return &item{dir: dir}, nil
}

func (b *Backend) Close(backend.Item) {}

func (b *Backend) Delete(handle backend.Item) error {
	it := handle.(*item)
	if err := os.RemoveAll(it.dir); err != nil {
		return errors.Wrapf(err, "ec: delete %s", it.dir)
	}
	return nil
}

func (b *Backend) Status(handle backend.Item, flags backend.StatusFlag) (backend.Status, error) {
	it := handle.(*item)
	st := backend.Status{Flags: flags}
	if flags&backend.StatusSize != 0 {
		size, err := b.readSize(it.dir)
		if err != nil {
			return backend.Status{}, err
		}
		st.Size = size
	}
	if flags&backend.StatusModificationTime != 0 {
		fi, err := os.Stat(b.sizePath(it.dir))
		if err != nil {
			return backend.Status{}, errors.Wrapf(err, "ec: status %s", it.dir)
		}
		st.ModificationTime = fi.ModTime()
	}
	return st, nil
}

// Sync fsyncs the whole-item directory's shard files, including the
// size sidecar.
func (b *Backend) Sync(handle backend.Item) error {
	it := handle.(*item)
	paths := []string{b.sizePath(it.dir)}
	for i := 0; i < b.dataShards+b.parityShards; i++ {
		paths = append(paths, b.shardPath(it.dir, i))
	}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		_ = f.Sync()
		f.Close()
	}
	return nil
}

func (b *Backend) Read(handle backend.Item, buf []byte, offset uint64) (uint64, error) {
	it := handle.(*item)
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.readObject(it.dir)
	if err != nil {
		return 0, err
	}
	if offset >= uint64(len(data)) {
		return 0, nil
	}
	n := copy(buf, data[offset:])
	return uint64(n), nil
}

func (b *Backend) Write(handle backend.Item, buf []byte, offset uint64) (uint64, error) {
	it := handle.(*item)
	b.mu.Lock()
	defer b.mu.Unlock()

	current, err := b.readObject(it.dir)
	if err != nil {
		return 0, err
	}
	need := offset + uint64(len(buf))
	if uint64(len(current)) < need {
		grown := make([]byte, need)
		copy(grown, current)
		current = grown
	}
	copy(current[offset:], buf)

	if err := b.writeShards(it.dir, current); err != nil {
		return 0, err
	}
	return uint64(len(buf)), nil
}

// writeShards encodes data into dataShards+parityShards equal-length
// shards (zero-padded) and writes each plus the original size
// sidecar.
func (b *Backend) writeShards(dir string, data []byte) error {
	shards, err := b.enc.Split(padForSplit(data, b.dataShards))
	if err != nil {
		return errors.Wrapf(err, "ec: split %s", dir)
	}
	if err := b.enc.Encode(shards); err != nil {
		return errors.Wrapf(err, "ec: encode %s", dir)
	}
	for i, shard := range shards {
		if err := os.WriteFile(b.shardPath(dir, i), shard, 0o644); err != nil {
			return errors.Wrapf(err, "ec: write shard %d of %s", i, dir)
		}
	}
	return b.writeSize(dir, uint64(len(data)))
}

// readObject reads all data shards, reconstructing via parity if any
// are missing or short, then trims to the recorded original size.
func (b *Backend) readObject(dir string) ([]byte, error) {
	size, err := b.readSize(dir)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}

	total := b.dataShards + b.parityShards
	shards := make([][]byte, total)
	shardLen := -1
	for i := 0; i < total; i++ {
		buf, err := os.ReadFile(b.shardPath(dir, i))
		if err != nil {
			continue
		}
		shards[i] = buf
		if shardLen < 0 {
			shardLen = len(buf)
		}
	}
	if shardLen < 0 {
		return nil, errors.Errorf("ec: all shards missing for %s", dir)
	}
	for i := range shards {
		if shards[i] == nil || len(shards[i]) != shardLen {
			shards[i] = nil
		}
	}

	if ok, _ := b.enc.Verify(shards); !ok {
		if err := b.enc.Reconstruct(shards); err != nil {
			return nil, errors.Wrapf(err, "ec: reconstruct %s", dir)
		}
	}

	joined := make([]byte, 0, shardLen*b.dataShards)
	for i := 0; i < b.dataShards; i++ {
		joined = append(joined, shards[i]...)
	}
	if uint64(len(joined)) < size {
		return nil, errors.Errorf("ec: reconstructed object shorter than recorded size for %s", dir)
	}
	return joined[:size], nil
}

func (b *Backend) shardPath(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("shard.%d", i))
}

func (b *Backend) sizePath(dir string) string {
	return filepath.Join(dir, ".size")
}

func (b *Backend) writeSize(dir string, size uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, size)
	if err := os.WriteFile(b.sizePath(dir), buf, 0o644); err != nil {
		return errors.Wrapf(err, "ec: write size sidecar %s", dir)
	}
	return nil
}

func (b *Backend) readSize(dir string) (uint64, error) {
	buf, err := os.ReadFile(b.sizePath(dir))
	if err != nil {
		return 0, errors.Wrapf(err, "ec: read size sidecar %s", dir)
	}
	if len(buf) < 8 {
		return 0, errors.Errorf("ec: truncated size sidecar %s", dir)
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// padForSplit rounds data up to a multiple of dataShards so
// reedsolomon.Split never errors on an uneven length; Split itself
// also pads internally, but doing it here keeps shard length
// deterministic across repeated writes of prefix-identical objects.
func padForSplit(data []byte, dataShards int) []byte {
	if len(data) == 0 {
		return make([]byte, dataShards)
	}
	rem := len(data) % dataShards
	if rem == 0 {
		return data
	}
	padded := make([]byte, len(data)+(dataShards-rem))
	copy(padded, data)
	return padded
}
