// Package daemon implements the per-connection request engine (the
// server loop that reads framed batches, dispatches them against a
// backend through the open-item cache, and writes replies) and the
// listener that accepts connections and spawns one worker per
// connection.
/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package daemon

import (
	"io"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/juleastore/juleastore/backend"
	"github.com/juleastore/juleastore/cache"
	"github.com/juleastore/juleastore/memchunk"
	"github.com/juleastore/juleastore/stats"
	"github.com/juleastore/juleastore/wire"
)

// state is the worker's position in its Init -> Serving -> Draining ->
// Closed lifecycle.
type state int

const (
	stateInit state = iota
	stateServing
	stateDraining
	stateClosed
)

// Worker runs one connection strictly serially: it owns its arena,
// cache, and local counters outright and never shares them with another
// worker.
type Worker struct {
	conn   net.Conn
	data   backend.Data
	global *stats.Global
	log    *zap.Logger
	id     string

	state state
	local stats.Local
	arena *memchunk.Arena
	cache *cache.Cache
}

// NewWorker constructs a worker for an already-accepted connection. The
// backend and global statistics are shared immutably across all workers;
// everything else in Worker is exclusive to this connection.
func NewWorker(conn net.Conn, data backend.Data, global *stats.Global, stripeSize int, log *zap.Logger) *Worker {
	return &Worker{
		conn:   conn,
		data:   data,
		global: global,
		log:    log,
		id:     uuid.NewString(),
		state:  stateInit,
		arena:  memchunk.New(stripeSize),
	}
}

// Run drives the worker through its whole lifecycle and returns once the
// connection has fully drained. It never returns an error: protocol and
// backend errors are handled per §7 without tearing down the process.
func (w *Worker) Run() {
	w.init()
	w.serve()
	w.drain()
}

func (w *Worker) init() {
	if tc, ok := w.conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	w.cache = cache.New(w.data)
	w.data.ThreadInit()
	w.state = stateServing
	w.log.Debug("worker init", zap.String("conn", w.id))
}

func (w *Worker) serve() {
	for w.state == stateServing {
		msg, ok, err := wire.Read(w.conn)
		if err != nil {
			w.log.Debug("worker: protocol error, draining", zap.String("conn", w.id), zap.Error(err))
			w.state = stateDraining
			return
		}
		if !ok {
			w.log.Debug("worker: clean EOF, draining", zap.String("conn", w.id))
			w.state = stateDraining
			return
		}
		w.dispatch(msg)
	}
}

func (w *Worker) dispatch(msg *wire.Message) {
	switch msg.Type {
	case wire.TypeCreate:
		w.handleCreate(msg)
	case wire.TypeDelete:
		w.handleDelete(msg)
	case wire.TypeRead:
		w.handleRead(msg)
	case wire.TypeWrite:
		w.handleWrite(msg)
	case wire.TypeStatus:
		w.handleStatus(msg)
	case wire.TypeStatistics:
		w.handleStatistics(msg)
	default:
		w.log.Warn("worker: invalid request type, skipping",
			zap.String("conn", w.id), zap.Uint32("type", uint32(msg.Type)))
	}
}

func (w *Worker) drain() {
	w.global.Fold(&w.local)
	w.cache.Destroy()
	w.data.ThreadFini()
	_ = w.conn.Close()
	w.state = stateClosed
	w.log.Debug("worker drained", zap.String("conn", w.id))
}

// writeReply writes a reply message and logs (without failing the
// connection further) if the write itself errors — the socket is
// already in a bad state at that point and the next Read will surface
// it as a protocol error.
func (w *Worker) writeReply(reply *wire.Message) {
	if err := reply.Write(w.conn); err != nil {
		w.log.Debug("worker: reply write failed", zap.String("conn", w.id), zap.Error(err))
	}
}

// readStreamInto reads exactly n bytes from the connection directly
// (bypassing the framed codec), used by WRITE to consume payload blobs
// that follow the operation list on the wire.
func readStreamInto(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}
