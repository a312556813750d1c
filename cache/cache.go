// Package cache implements the per-connection open-item cache: a map
// from the canonical "store.collection.item" key to a backend handle,
// with the close-exactly-once discipline the engine relies on.
/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package cache

import (
	"github.com/juleastore/juleastore/backend"
)

// Cache is a single connection's open-item table. It is never shared
// between connections; a concurrent connection has an independent Cache
// and may independently hold the same item open.
type Cache struct {
	data backend.Data
	open map[string]backend.Item
}

// New creates an empty cache bound to a shared, immutable data backend.
func New(data backend.Data) *Cache {
	return &Cache{data: data, open: make(map[string]backend.Item)}
}

func key(store, collection, item string) string {
	return store + "." + collection + "." + item
}

// Create allocates a handle via the backend and, on success, inserts it
// under the cache key; on failure nothing is inserted.
func (c *Cache) Create(store, collection, item string) (backend.Item, error) {
	h, err := c.data.Create(store, collection, item)
	if err != nil {
		return nil, err
	}
	c.open[key(store, collection, item)] = h
	return h, nil
}

// Open returns the existing handle for the key if present, else opens a
// fresh one via the backend and inserts it; on failure nothing is
// inserted.
func (c *Cache) Open(store, collection, item string) (backend.Item, error) {
	k := key(store, collection, item)
	if h, ok := c.open[k]; ok {
		return h, nil
	}
	h, err := c.data.Open(store, collection, item)
	if err != nil {
		return nil, err
	}
	c.open[k] = h
	return h, nil
}

// Close removes the entry for (store, collection, item) if present and
// invokes the backend's Close exactly once.
func (c *Cache) Close(store, collection, item string) {
	k := key(store, collection, item)
	h, ok := c.open[k]
	if !ok {
		return
	}
	delete(c.open, k)
	c.data.Close(h)
}

// Destroy closes every remaining open handle, guaranteeing the
// close-exactly-once invariant at worker shutdown.
func (c *Cache) Destroy() {
	for k, h := range c.open {
		delete(c.open, k)
		c.data.Close(h)
	}
}

// Len reports the number of currently open handles (diagnostics only).
func (c *Cache) Len() int { return len(c.open) }
