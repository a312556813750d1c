// Package backend defines the abstract contract driven by the request
// engine: a data backend (component E's data half) and a meta backend
// (the parallel contract the MongoDB plug-in implements). Concrete
// backends register themselves by name in a compile-time registry that
// stands in for the C ABI's dlopen-by-name symbol resolution (see
// DESIGN.md for why Go substitutes a registry here).
/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package backend

import (
	"fmt"
	"time"
)

// StatusFlag selects which fields of Status the backend should fill.
type StatusFlag uint32

const (
	StatusSize             StatusFlag = 1 << 0
	StatusModificationTime StatusFlag = 1 << 1
)

// Status is produced by a data backend's Status call. Only the fields
// named in the requested flags are meaningful.
type Status struct {
	Flags            StatusFlag
	Size             uint64
	ModificationTime time.Time
}

// Item is the opaque handle a data backend produces for a
// (store, collection, item) triple. It is owned by whichever cache entry
// created it and is never shared between connections.
type Item interface{}

// Data is the pluggable contract the request engine drives for every
// CREATE/DELETE/READ/WRITE/STATUS operation. Exactly one implementation
// is loaded per process, resolved once at startup and shared immutably
// by every worker. Per-handle state must be single-threaded: the engine
// never calls two backend methods for the same handle concurrently.
type Data interface {
	// Init is called once, before any worker runs. path is opaque to the
	// engine and passed through verbatim from Configuration.
	Init(path string) error
	// Fini is called once, after the listener has stopped accepting.
	Fini()

	// ThreadInit/ThreadFini are optional per-worker lifecycle hooks; a
	// backend with no per-thread state may leave them no-ops.
	ThreadInit()
	ThreadFini()

	// Create materializes a new object and returns its handle.
	Create(store, collection, item string) (Item, error)
	// Open produces a usable handle for an existing object. The engine
	// may call Open on an object it just Created.
	Open(store, collection, item string) (Item, error)
	// Close releases resources held by handle. The engine guarantees
	// exactly one Close per handle.
	Close(handle Item)
	// Delete removes the underlying object. The engine immediately
	// closes handle afterward.
	Delete(handle Item) error

	// Status fills only the fields named by flags.
	Status(handle Item, flags StatusFlag) (Status, error)
	// Sync durably flushes handle. Called exactly when SAFETY_STORAGE is
	// set on a write batch, once per item touched, after all writes.
	Sync(handle Item) error

	// Read may return fewer bytes than len(buf); the returned count is
	// authoritative.
	Read(handle Item, buf []byte, offset uint64) (n uint64, err error)
	// Write may accept fewer bytes than len(buf); the returned count is
	// authoritative.
	Write(handle Item, buf []byte, offset uint64) (n uint64, err error)
}

// Document is a generic metadata record (a Go map, so field order is not
// preserved): the engine treats it as opaque and concrete meta backends
// translate it to their native representation (e.g. BSON for MongoDB).
type Document map[string]any

// Cursor is an opaque iteration handle returned by Meta.GetAll.
type Cursor interface{}

// Meta is the metadata-database contract (not driven by the data-daemon
// engine; specified for completeness and implemented by the MongoDB
// plug-in in backend/mongo).
type Meta interface {
	Init(path string) error
	Fini()

	Create(namespace, key string, doc Document) error
	Delete(namespace, key string) error
	Get(namespace, key string) (Document, error)
	GetAll(namespace string) (Cursor, error)
	// Iterate advances cursor and returns the next document. more is
	// false once the cursor is exhausted.
	Iterate(cursor Cursor) (doc Document, more bool, err error)
}

// DataFactory constructs a fresh Data backend instance.
type DataFactory func() Data

var dataRegistry = map[string]DataFactory{}

// RegisterData adds a data backend constructor to the registry under
// name. Called from each backend package's init(), mirroring the
// single mandatory entry point the C ABI would have resolved by symbol.
func RegisterData(name string, f DataFactory) {
	if _, dup := dataRegistry[name]; dup {
		panic("backend: duplicate data backend registration: " + name)
	}
	dataRegistry[name] = f
}

// NewData resolves name in the registry and constructs a fresh backend.
// It fails fast, before any worker starts, if name is unknown.
func NewData(name string) (Data, error) {
	f, ok := dataRegistry[name]
	if !ok {
		return nil, fmt.Errorf("backend: unknown data backend %q", name)
	}
	return f(), nil
}

// RegisteredData lists the names available in the registry, for
// diagnostics and --help output.
func RegisteredData() []string {
	names := make([]string, 0, len(dataRegistry))
	for n := range dataRegistry {
		names = append(names, n)
	}
	return names
}
