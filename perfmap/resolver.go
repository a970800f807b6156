// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package perfmap resolves addresses of JIT compiled code to symbol names
// using the /tmp/perf-<pid>.map files that runtimes such as .NET, Node.js or
// the JVM (through perf-map-agent) append to while they run.
//
// The map file is written by the profiled process without any coordination,
// so a Resolver only ever consumes complete lines, remembers how far it got,
// and re-reads the file at most once per MinRefreshInterval unless forced.
package perfmap // import "go.opentelemetry.io/perfmap/perfmap"

import (
	"bufio"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"go.opentelemetry.io/perfmap/libpf"
	"go.opentelemetry.io/perfmap/symbolname"
)

const (
	// DefaultMinRefreshInterval is the minimum time between two unforced
	// re-reads of a map file.
	DefaultMinRefreshInterval = 100 * time.Millisecond

	// DefaultMapDir is where runtimes write their perf map files.
	DefaultMapDir = "/tmp"
)

// timeNow is overridable for the test suite.
var timeNow = time.Now

// Options configures a Resolver.
type Options struct {
	// MinRefreshInterval bounds how often a lookup miss re-reads the map file.
	MinRefreshInterval time.Duration
	// MapDir is the directory holding perf-<pid>.map. For processes in
	// another mount namespace this is e.g. /proc/<pid>/root/tmp.
	MapDir string
	// KeepMapFile disables removing the map file in FreeResources.
	KeepMapFile bool
}

// DefaultOptions returns the options used by the profiler.
func DefaultOptions() Options {
	return Options{
		MinRefreshInterval: DefaultMinRefreshInterval,
		MapDir:             DefaultMapDir,
	}
}

// Statistics holds resolver counters accumulated since the previous
// GetAndResetStatistics call.
type Statistics struct {
	Refreshes    uint64
	LinesParsed  uint64
	LinesSkipped uint64
	PartialLines uint64
	Hits         uint64
	Misses       uint64
	FilesRemoved uint64
}

type counters struct {
	refreshes    atomic.Uint64
	linesParsed  atomic.Uint64
	linesSkipped atomic.Uint64
	partialLines atomic.Uint64
	hits         atomic.Uint64
	misses       atomic.Uint64
	filesRemoved atomic.Uint64
}

// Resolver resolves addresses of one process to JIT symbol names.
//
// A Resolver is not safe for concurrent use. It is meant to be recycled with
// Reset and FreeResources instead of being allocated per tracked process.
// Only the statistics may be read from other goroutines.
type Resolver struct {
	pid      libpf.PID
	path     libpf.String
	interner symbolname.Interner

	table Table

	// lastReadOffset is the file offset just past the last consumed line.
	// Only Reset moves it backwards.
	lastReadOffset int64
	lastRefresh    time.Time

	minRefreshInterval time.Duration
	mapDir             string
	keepMapFile        bool

	pathBuffer pathBuffer
	line       []byte
	reader     *bufio.Reader

	counters counters
}

// NewResolver returns an unassigned Resolver. Reset must be called before
// the first Resolve.
func NewResolver(opts Options) *Resolver {
	if opts.MinRefreshInterval < 0 {
		opts.MinRefreshInterval = 0
	}
	if opts.MapDir == "" {
		opts.MapDir = DefaultMapDir
	}
	return &Resolver{
		minRefreshInterval: opts.MinRefreshInterval,
		mapDir:             strings.TrimSuffix(opts.MapDir, "/"),
		keepMapFile:        opts.KeepMapFile,
		pathBuffer:         newPathBuffer(),
	}
}

// Reset assigns the resolver to a new process. All cached intervals, the read
// offset and the refresh time are dropped while buffers keep their capacity.
// path is the grouping handle symbol names are interned under, typically the
// executable of the process.
func (r *Resolver) Reset(pid libpf.PID, path libpf.String, interner symbolname.Interner) {
	r.pid = pid
	r.path = path
	r.interner = interner
	r.table.Reset()
	r.lastRefresh = time.Time{}
	r.pathBuffer.Reset()
	r.line = r.line[:0]
	r.lastReadOffset = 0
}

// FreeResources drops the cached intervals and deletes the perf map file if
// its path was ever built, so that map files of processes no longer being
// profiled do not pile up.
func (r *Resolver) FreeResources() {
	r.table.Reset()
	if r.pathBuffer.Empty() || r.keepMapFile {
		return
	}
	path := r.pathBuffer.String()
	if err := unix.Unlink(path); err != nil {
		if !errors.Is(err, unix.ENOENT) {
			log.Debugf("Failed to remove perf map %s: %v", path, err)
		}
		return
	}
	r.counters.filesRemoved.Add(1)
	log.Debugf("Removed perf map %s", path)
}

// Resolve returns the symbol covering addr, or nil if there is none.
//
// A miss re-reads the map file if MinRefreshInterval passed since the previous
// re-read, or unconditionally when forceUpdate is set, and then retries the
// lookup once. forceUpdate trades throughput for not missing symbols that
// were published moments ago.
func (r *Resolver) Resolve(addr libpf.Address, forceUpdate bool) *symbolname.SymbolName {
	if sym := r.table.Lookup(addr); sym != nil {
		r.counters.hits.Add(1)
		return sym
	}

	now := timeNow()
	if r.needsRefresh(now, forceUpdate) {
		r.update()
		r.lastRefresh = now
		if sym := r.table.Lookup(addr); sym != nil {
			r.counters.hits.Add(1)
			return sym
		}
	}
	r.counters.misses.Add(1)
	return nil
}

func (r *Resolver) needsRefresh(now time.Time, forceUpdate bool) bool {
	return forceUpdate || now.Sub(r.lastRefresh) >= r.minRefreshInterval
}

// PID returns the process the resolver is assigned to.
func (r *Resolver) PID() libpf.PID {
	return r.pid
}

// MapFilePath returns the perf map path of the assigned process.
func (r *Resolver) MapFilePath() string {
	return strings.Clone(r.mapFilePath())
}

// Len returns the number of cached intervals.
func (r *Resolver) Len() int {
	return r.table.Len()
}

// LastReadOffset returns the file offset just past the last consumed line.
func (r *Resolver) LastReadOffset() int64 {
	return r.lastReadOffset
}

// GetAndResetStatistics returns the counters since the previous call and
// resets them to 0.
func (r *Resolver) GetAndResetStatistics() Statistics {
	return Statistics{
		Refreshes:    r.counters.refreshes.Swap(0),
		LinesParsed:  r.counters.linesParsed.Swap(0),
		LinesSkipped: r.counters.linesSkipped.Swap(0),
		PartialLines: r.counters.partialLines.Swap(0),
		Hits:         r.counters.hits.Swap(0),
		Misses:       r.counters.misses.Swap(0),
		FilesRemoved: r.counters.filesRemoved.Swap(0),
	}
}
