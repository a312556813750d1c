/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package daemon

import (
	"go.uber.org/zap"

	"github.com/juleastore/juleastore/backend"
	"github.com/juleastore/juleastore/wire"
)

// handleCreate implements §4.F CREATE: no reply is ever sent, even under
// SAFETY_NETWORK — the reference daemon does not acknowledge creates.
func (w *Worker) handleCreate(msg *wire.Message) {
	store, collection, ok := w.readStoreCollection(msg)
	if !ok {
		return
	}
	for i := uint32(0); i < msg.Count; i++ {
		item, err := msg.ReadString()
		if err != nil {
			w.log.Warn("create: bad item string", zap.String("conn", w.id), zap.Error(err))
			return
		}
		if _, err := w.cache.Create(store, collection, item); err == nil {
			w.local.AddFilesCreated(1)
		}
	}
}

// handleDelete implements §4.F DELETE: a reply carrying `count`
// zero-length operations is sent iff SAFETY_NETWORK is set.
func (w *Worker) handleDelete(msg *wire.Message) {
	var reply *wire.Message
	if msg.Modifier&wire.SafetyNetwork != 0 {
		reply = wire.NewReply(msg)
	}

	store, collection, ok := w.readStoreCollection(msg)
	if !ok {
		return
	}

	for i := uint32(0); i < msg.Count; i++ {
		item, err := msg.ReadString()
		if err != nil {
			w.log.Warn("delete: bad item string", zap.String("conn", w.id), zap.Error(err))
			break
		}
		if h, err := w.cache.Open(store, collection, item); err == nil {
			if derr := w.data.Delete(h); derr == nil {
				w.local.AddFilesDeleted(1)
			}
			w.cache.Close(store, collection, item)
		}
		if reply != nil {
			reply.AddOperation(0)
		}
	}

	if reply != nil {
		w.writeReply(reply)
	}
}

// handleRead implements §4.F READ: a single item per batch, an arena
// sub-buffer per operation, and a partial-reply flush whenever the
// arena would overflow.
func (w *Worker) handleRead(msg *wire.Message) {
	store, collection, ok := w.readStoreCollection(msg)
	if !ok {
		return
	}
	item, err := msg.ReadString()
	if err != nil {
		w.log.Warn("read: bad item string", zap.String("conn", w.id), zap.Error(err))
		return
	}

	reply := wire.NewReply(msg)
	h, openErr := w.cache.Open(store, collection, item)

	for i := uint32(0); i < msg.Count; i++ {
		length, lerr := msg.ReadU64()
		if lerr != nil {
			w.log.Warn("read: bad length field", zap.String("conn", w.id), zap.Error(lerr))
			break
		}
		offset, oerr := msg.ReadU64()
		if oerr != nil {
			w.log.Warn("read: bad offset field", zap.String("conn", w.id), zap.Error(oerr))
			break
		}

		buf := w.arena.Get(int(length))
		if buf == nil {
			// Arena exhausted: flush the partial reply, start a fresh
			// one, reset the arena, and retry the allocation.
			w.writeReply(reply)
			reply = wire.NewReply(msg)
			w.arena.Reset()
			buf = w.arena.Get(int(length))
		}

		var bytesRead uint64
		if openErr == nil && buf != nil {
			bytesRead, _ = w.data.Read(h, buf, offset)
		}
		w.local.AddBytesRead(bytesRead)

		reply.AddOperation(8)
		reply.AppendU64(bytesRead)
		if bytesRead > 0 {
			reply.AddSend(buf[:bytesRead])
		}
		w.local.AddBytesSent(bytesRead)
	}

	w.writeReply(reply)
	w.arena.Reset()
}

// handleWrite implements §4.F WRITE: a merge window coalesces adjacent
// operations into a single backend Write call, bounded by one
// stripe-sized arena buffer guaranteed to fit the whole window.
func (w *Worker) handleWrite(msg *wire.Message) {
	var reply *wire.Message
	if msg.Modifier&wire.SafetyNetwork != 0 {
		reply = wire.NewReply(msg)
	}

	store, collection, ok := w.readStoreCollection(msg)
	if !ok {
		return
	}
	item, err := msg.ReadString()
	if err != nil {
		w.log.Warn("write: bad item string", zap.String("conn", w.id), zap.Error(err))
		return
	}

	buf := w.arena.Get(w.arena.Size())
	h, openErr := w.cache.Open(store, collection, item)

	var mergeOffset, mergeLength uint64
	flush := func() {
		if mergeLength == 0 {
			return
		}
		chunk := buf[:mergeLength]
		if err := readStreamInto(w.conn, chunk); err != nil {
			w.log.Debug("write: short read of payload blob", zap.String("conn", w.id), zap.Error(err))
			mergeLength = 0
			return
		}
		w.local.AddBytesReceived(mergeLength)

		var written uint64
		if openErr == nil {
			written, _ = w.data.Write(h, chunk, mergeOffset)
		}
		w.local.AddBytesWritten(written)
		mergeLength = 0
	}

	for i := uint32(0); i < msg.Count; i++ {
		length, lerr := msg.ReadU64()
		if lerr != nil {
			break
		}
		offset, oerr := msg.ReadU64()
		if oerr != nil {
			break
		}

		if mergeLength > 0 && mergeOffset+mergeLength == offset && mergeLength+length <= uint64(w.arena.Size()) {
			mergeLength += length
		} else {
			flush()
			mergeLength = length
			mergeOffset = offset
		}

		if reply != nil {
			// The reply reports the requested length, not bytes_written:
			// codified as-is, see SPEC_FULL.md §9 and DESIGN.md.
			reply.AddOperation(8)
			reply.AppendU64(length)
		}
	}
	flush()

	if msg.Modifier&wire.SafetyStorage != 0 && openErr == nil {
		if err := w.data.Sync(h); err == nil {
			w.local.AddSync(1)
		}
	}

	if reply != nil {
		w.writeReply(reply)
	}
}

// handleStatus implements §4.F STATUS: the reply reserves exactly
// popcount(flags ∩ {MTIME, SIZE}) × 8 bytes per operation, fields
// ordered modification_time before size.
func (w *Worker) handleStatus(msg *wire.Message) {
	store, collection, ok := w.readStoreCollection(msg)
	if !ok {
		return
	}
	reply := wire.NewReply(msg)

	for i := uint32(0); i < msg.Count; i++ {
		item, ierr := msg.ReadString()
		if ierr != nil {
			break
		}
		rawFlags, ferr := msg.ReadU32()
		if ferr != nil {
			break
		}
		flags := backend.StatusFlag(rawFlags)

		h, openErr := w.cache.Open(store, collection, item)

		var st backend.Status
		var statusErr error = openErr
		if openErr == nil {
			st, statusErr = w.data.Status(h, flags)
		}
		if statusErr == nil {
			w.local.AddFilesStated(1)
		}

		n := 0
		if flags&backend.StatusModificationTime != 0 {
			n += 8
		}
		if flags&backend.StatusSize != 0 {
			n += 8
		}
		reply.AddOperation(n)

		if flags&backend.StatusModificationTime != 0 {
			reply.AppendU64(uint64(st.ModificationTime.Unix()))
		}
		if flags&backend.StatusSize != 0 {
			reply.AppendU64(st.Size)
		}
	}

	w.writeReply(reply)
}

// handleStatistics implements §4.F STATISTICS: get_all selects between
// the worker's own counters and the mutex-guarded global snapshot.
func (w *Worker) handleStatistics(msg *wire.Message) {
	getAll, err := msg.ReadU8()
	if err != nil {
		return
	}

	var values [8]uint64
	if getAll == 0 {
		values = w.local.Values()
	} else {
		values = w.global.Snapshot().Values()
	}

	reply := wire.NewReply(msg)
	reply.AddOperation(64)
	for _, v := range values {
		reply.AppendU64(v)
	}
	w.writeReply(reply)
}

// readStoreCollection reads the two leading strings shared by every
// batch type. ok is false if the payload was truncated or malformed.
func (w *Worker) readStoreCollection(msg *wire.Message) (store, collection string, ok bool) {
	var err error
	store, err = msg.ReadString()
	if err != nil {
		w.log.Warn("bad store string", zap.String("conn", w.id), zap.Error(err))
		return "", "", false
	}
	collection, err = msg.ReadString()
	if err != nil {
		w.log.Warn("bad collection string", zap.String("conn", w.id), zap.Error(err))
		return "", "", false
	}
	return store, collection, true
}
