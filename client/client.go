// Package client implements a thin synchronous client for the wire
// protocol, used by cmd/juleactl and available to anything else that
// wants to drive a juleastore daemon without reimplementing framing.
/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package client

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/juleastore/juleastore/stats"
	"github.com/juleastore/juleastore/wire"
)

// Client holds one connection to a daemon. It is not safe for
// concurrent use by multiple goroutines, mirroring the one-batch-at-
// a-time discipline the wire protocol itself assumes per connection.
type Client struct {
	conn net.Conn
}

// Dial connects to a daemon at addr ("host:port").
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, errors.Wrapf(err, "client: dial %s", addr)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Create sends a CREATE batch for the given items; the daemon never
// replies to CREATE, so this returns as soon as the batch is written.
func (c *Client) Create(store, collection string, items []string) error {
	msg := wire.New(wire.TypeCreate, 0)
	msg.AppendString(store)
	msg.AppendString(collection)
	for _, item := range items {
		msg.AppendString(item)
	}
	msg.Count = uint32(len(items))
	return errors.Wrap(msg.Write(c.conn), "client: create")
}

// Delete sends a DELETE batch. If safetyNetwork is set the daemon
// acknowledges with one zero-length operation per item, which this
// call waits for.
func (c *Client) Delete(store, collection string, items []string, safetyNetwork bool) error {
	var mod wire.Modifier
	if safetyNetwork {
		mod = wire.SafetyNetwork
	}
	msg := wire.New(wire.TypeDelete, mod)
	msg.AppendString(store)
	msg.AppendString(collection)
	for _, item := range items {
		msg.AppendString(item)
	}
	msg.Count = uint32(len(items))
	if err := msg.Write(c.conn); err != nil {
		return errors.Wrap(err, "client: delete")
	}
	if safetyNetwork {
		if _, _, err := wire.Read(c.conn); err != nil {
			return errors.Wrap(err, "client: delete reply")
		}
	}
	return nil
}

// ReadRange names one (length, offset) span to read.
type ReadRange struct {
	Length uint64
	Offset uint64
}

// Read issues one READ batch for a single item and returns the bytes
// read for each requested range, in request order. The daemon may
// split its answer across more than one reply message when the
// combined ranges overflow its arena; Read reassembles them
// transparently.
func (c *Client) Read(store, collection, item string, ranges []ReadRange) ([][]byte, error) {
	msg := wire.New(wire.TypeRead, 0)
	msg.AppendString(store)
	msg.AppendString(collection)
	msg.AppendString(item)
	for _, r := range ranges {
		msg.AppendU64(r.Length)
		msg.AppendU64(r.Offset)
	}
	msg.Count = uint32(len(ranges))
	if err := msg.Write(c.conn); err != nil {
		return nil, errors.Wrap(err, "client: read request")
	}

	results := make([][]byte, 0, len(ranges))
	for len(results) < len(ranges) {
		reply, ok, err := wire.Read(c.conn)
		if err != nil || !ok {
			return nil, errors.Wrap(err, "client: read reply")
		}
		for i := uint32(0); i < reply.Count; i++ {
			n, err := reply.ReadU64()
			if err != nil {
				return nil, errors.Wrap(err, "client: read reply op")
			}
			buf := make([]byte, n)
			if n > 0 {
				if _, err := readFull(c.conn, buf); err != nil {
					return nil, errors.Wrap(err, "client: read sub-send")
				}
			}
			results = append(results, buf)
		}
	}
	return results, nil
}

// WriteRange names one (length, offset) span to write, with the bytes
// that belong to it.
type WriteRange struct {
	Offset uint64
	Data   []byte
}

// Write issues one WRITE batch for a single item. If safetyNetwork is
// set, it waits for and returns the per-range acknowledgement lengths.
func (c *Client) Write(store, collection, item string, ranges []WriteRange, safetyNetwork, safetyStorage bool) ([]uint64, error) {
	var mod wire.Modifier
	if safetyNetwork {
		mod |= wire.SafetyNetwork
	}
	if safetyStorage {
		mod |= wire.SafetyStorage
	}

	msg := wire.New(wire.TypeWrite, mod)
	msg.AppendString(store)
	msg.AppendString(collection)
	msg.AppendString(item)
	for _, r := range ranges {
		msg.AppendU64(uint64(len(r.Data)))
		msg.AppendU64(r.Offset)
	}
	msg.Count = uint32(len(ranges))
	if err := msg.Write(c.conn); err != nil {
		return nil, errors.Wrap(err, "client: write request")
	}
	for _, r := range ranges {
		if _, err := c.conn.Write(r.Data); err != nil {
			return nil, errors.Wrap(err, "client: write payload")
		}
	}

	if !safetyNetwork {
		return nil, nil
	}
	reply, ok, err := wire.Read(c.conn)
	if err != nil || !ok {
		return nil, errors.Wrap(err, "client: write reply")
	}
	lengths := make([]uint64, 0, reply.Count)
	for i := uint32(0); i < reply.Count; i++ {
		n, err := reply.ReadU64()
		if err != nil {
			return nil, errors.Wrap(err, "client: write reply op")
		}
		lengths = append(lengths, n)
	}
	return lengths, nil
}

// StatusQuery names one item and the fields wanted about it.
type StatusQuery struct {
	Item  string
	Flags uint32
}

// StatusResult holds whichever fields were requested; zero means not
// requested (or genuinely zero).
type StatusResult struct {
	ModificationTime uint64
	Size             uint64
}

func (c *Client) Status(store, collection string, queries []StatusQuery) ([]StatusResult, error) {
	msg := wire.New(wire.TypeStatus, 0)
	msg.AppendString(store)
	msg.AppendString(collection)
	for _, q := range queries {
		msg.AppendString(q.Item)
		msg.AppendU32(q.Flags)
	}
	msg.Count = uint32(len(queries))
	if err := msg.Write(c.conn); err != nil {
		return nil, errors.Wrap(err, "client: status request")
	}

	reply, ok, err := wire.Read(c.conn)
	if err != nil || !ok {
		return nil, errors.Wrap(err, "client: status reply")
	}

	// Field order matches backend.StatusModificationTime before
	// backend.StatusSize (see dispatch.go's handleStatus); the bit
	// values themselves (1<<1 and 1<<0 respectively) are duplicated
	// here rather than importing the server-side backend package into
	// a client.
	const (
		flagSize             = 1 << 0
		flagModificationTime = 1 << 1
	)

	results := make([]StatusResult, 0, len(queries))
	for _, q := range queries {
		var r StatusResult
		if q.Flags&flagModificationTime != 0 {
			r.ModificationTime, err = reply.ReadU64()
			if err != nil {
				return nil, errors.Wrap(err, "client: status mtime")
			}
		}
		if q.Flags&flagSize != 0 {
			r.Size, err = reply.ReadU64()
			if err != nil {
				return nil, errors.Wrap(err, "client: status size")
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// Statistics requests either the connection-local or the global
// counters and returns them in stats' fixed wire order.
func (c *Client) Statistics(getAll bool) (stats.Counters, error) {
	msg := wire.New(wire.TypeStatistics, 0)
	var b uint8
	if getAll {
		b = 1
	}
	msg.AppendU8(b)
	if err := msg.Write(c.conn); err != nil {
		return stats.Counters{}, errors.Wrap(err, "client: statistics request")
	}

	reply, ok, err := wire.Read(c.conn)
	if err != nil || !ok {
		return stats.Counters{}, errors.Wrap(err, "client: statistics reply")
	}
	var values [8]uint64
	for i := range values {
		values[i], err = reply.ReadU64()
		if err != nil {
			return stats.Counters{}, errors.Wrap(err, "client: statistics field")
		}
	}
	return stats.Counters{
		FilesCreated:  values[0],
		FilesDeleted:  values[1],
		FilesStated:   values[2],
		Sync:          values[3],
		BytesRead:     values[4],
		BytesWritten:  values[5],
		BytesReceived: values[6],
		BytesSent:     values[7],
	}, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
