// Package stats implements the eight-counter statistics discipline of the
// storage daemon: a lock-free per-connection instance mutated only by its
// owning worker, and a single mutex-guarded process-wide instance folded
// in at connection teardown and read by STATISTICS requests that ask for
// the global view.
/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters holds the eight monotonic counters in the fixed wire order.
type Counters struct {
	FilesCreated  uint64
	FilesDeleted  uint64
	FilesStated   uint64
	Sync          uint64
	BytesRead     uint64
	BytesWritten  uint64
	BytesReceived uint64
	BytesSent     uint64
}

// Values returns the eight counters in the fixed §4.C wire order.
func (c Counters) Values() [8]uint64 {
	return [8]uint64{
		c.FilesCreated, c.FilesDeleted, c.FilesStated, c.Sync,
		c.BytesRead, c.BytesWritten, c.BytesReceived, c.BytesSent,
	}
}

// Local is a per-connection accumulator. It is touched only by its
// owning worker goroutine and therefore needs no synchronization.
type Local struct {
	Counters
}

func (l *Local) AddFilesCreated(n uint64)  { l.FilesCreated += n }
func (l *Local) AddFilesDeleted(n uint64)  { l.FilesDeleted += n }
func (l *Local) AddFilesStated(n uint64)   { l.FilesStated += n }
func (l *Local) AddSync(n uint64)          { l.Sync += n }
func (l *Local) AddBytesRead(n uint64)     { l.BytesRead += n }
func (l *Local) AddBytesWritten(n uint64)  { l.BytesWritten += n }
func (l *Local) AddBytesReceived(n uint64) { l.BytesReceived += n }
func (l *Local) AddBytesSent(n uint64)     { l.BytesSent += n }

// Global is the process-wide accumulator. All access goes through the
// single mutex, taken (i) when a worker folds its Local in at teardown
// and (ii) when a STATISTICS request asks for get_all != 0.
type Global struct {
	mu sync.Mutex
	Counters

	prom *promMirror
}

// NewGlobal constructs the process-wide accumulator and, if reg is
// non-nil, registers its Prometheus mirror instruments.
func NewGlobal(reg prometheus.Registerer) *Global {
	g := &Global{}
	if reg != nil {
		g.prom = newPromMirror(reg)
	}
	return g
}

// Fold adds l's counters into the global instance exactly once, under
// the mutex, and advances the matching Prometheus counters.
func (g *Global) Fold(l *Local) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.FilesCreated += l.FilesCreated
	g.FilesDeleted += l.FilesDeleted
	g.FilesStated += l.FilesStated
	g.Sync += l.Sync
	g.BytesRead += l.BytesRead
	g.BytesWritten += l.BytesWritten
	g.BytesReceived += l.BytesReceived
	g.BytesSent += l.BytesSent

	if g.prom != nil {
		g.prom.add(l)
	}
}

// Snapshot returns the global counters under the mutex. Per the
// documented defect in julead's source (see SPEC_FULL.md §9), this reflects
// only connections that have already folded in at teardown — it is not
// a live read-barrier across still-running workers.
func (g *Global) Snapshot() Counters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Counters
}

// Lock/Unlock expose the single global mutex directly. Fold and Snapshot
// take the same mutex themselves, so neither may be called while it is
// held through Lock.
func (g *Global) Lock()   { g.mu.Lock() }
func (g *Global) Unlock() { g.mu.Unlock() }

// promMirror republishes the eight counters as Prometheus instruments.
// It is purely additive observability with no effect on wire semantics.
type promMirror struct {
	filesCreated  prometheus.Counter
	filesDeleted  prometheus.Counter
	filesStated   prometheus.Counter
	syncs         prometheus.Counter
	bytesRead     prometheus.Counter
	bytesWritten  prometheus.Counter
	bytesReceived prometheus.Counter
	bytesSent     prometheus.Counter
}

func newPromMirror(reg prometheus.Registerer) *promMirror {
	mk := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "juleastore",
			Subsystem: "daemon",
			Name:      name,
			Help:      help,
		})
		reg.MustRegister(c)
		return c
	}
	return &promMirror{
		filesCreated:  mk("files_created_total", "Items created."),
		filesDeleted:  mk("files_deleted_total", "Items deleted."),
		filesStated:   mk("files_stated_total", "Successful status calls."),
		syncs:         mk("sync_total", "Backend sync calls."),
		bytesRead:     mk("bytes_read_total", "Bytes read from backends."),
		bytesWritten:  mk("bytes_written_total", "Bytes written to backends."),
		bytesReceived: mk("bytes_received_total", "Bytes received from clients."),
		bytesSent:     mk("bytes_sent_total", "Bytes sent to clients."),
	}
}

func (p *promMirror) add(l *Local) {
	p.filesCreated.Add(float64(l.FilesCreated))
	p.filesDeleted.Add(float64(l.FilesDeleted))
	p.filesStated.Add(float64(l.FilesStated))
	p.syncs.Add(float64(l.Sync))
	p.bytesRead.Add(float64(l.BytesRead))
	p.bytesWritten.Add(float64(l.BytesWritten))
	p.bytesReceived.Add(float64(l.BytesReceived))
	p.bytesSent.Add(float64(l.BytesSent))
}
