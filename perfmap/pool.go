// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package perfmap // import "go.opentelemetry.io/perfmap/perfmap"

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"go.opentelemetry.io/perfmap/libpf"
	"go.opentelemetry.io/perfmap/libpf/freelru"
	"go.opentelemetry.io/perfmap/metrics"
	"go.opentelemetry.io/perfmap/periodiccaller"
	"go.opentelemetry.io/perfmap/symbolname"
)

// sweepJitter is the +/- jitter applied to the sweep interval.
const sweepJitter = 0.2

// statisticsSource is implemented by interners that keep lookup statistics,
// such as symbolname.Table.
type statisticsSource interface {
	GetAndResetStatistics() freelru.Statistics
}

// slot is one arena entry. mu serializes Pool.Resolve against release of the
// same slot, so lookups of different processes do not wait for each other.
type slot struct {
	mu sync.Mutex
	r  *Resolver
}

// Pool is an arena of Resolver slots. Slots of processes that are no longer
// tracked are recycled for new processes instead of being reallocated.
//
// The slot bookkeeping is safe for concurrent use. A Resolver handed out by
// Acquire or Get is still a single caller object, and must not be used after
// its process was released, either explicitly or by a sweep.
//
// Lock order is Pool.mu before slot.mu.
type Pool struct {
	mu       sync.Mutex
	interner symbolname.Interner
	opts     Options

	slots []*slot
	free  []int
	byPID map[libpf.PID]int

	released uint64
}

// NewPool creates an empty pool. All resolvers share interner.
func NewPool(interner symbolname.Interner, opts Options) *Pool {
	return &Pool{
		interner: interner,
		opts:     opts,
		byPID:    make(map[libpf.PID]int),
	}
}

// Acquire returns the resolver tracking pid, assigning a free or new slot if
// the process is not tracked yet. path is the grouping handle symbol names of
// the process are interned under.
func (p *Pool) Acquire(pid libpf.PID, path libpf.String) *Resolver {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.byPID[pid]; ok {
		return p.slots[idx].r
	}

	var idx int
	if n := len(p.free); n > 0 {
		idx = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		idx = len(p.slots)
		p.slots = append(p.slots, &slot{r: NewResolver(p.opts)})
	}
	r := p.slots[idx].r
	r.Reset(pid, path, p.interner)
	p.byPID[pid] = idx
	log.Debugf("Tracking perf map of PID %d in slot %d", pid, idx)
	return r
}

// Get returns the resolver tracking pid, or nil.
func (p *Pool) Get(pid libpf.PID) *Resolver {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.byPID[pid]; ok {
		return p.slots[idx].r
	}
	return nil
}

// Resolve resolves addr for a tracked pid while holding the lock of its slot,
// which makes it safe to combine with StartSweeper and with concurrent
// Resolve calls for the same pid. Map file I/O of one process does not block
// other processes. Untracked pids resolve to nil.
func (p *Pool) Resolve(pid libpf.PID, addr libpf.Address,
	forceUpdate bool) *symbolname.SymbolName {
	p.mu.Lock()
	idx, ok := p.byPID[pid]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	s := p.slots[idx]
	s.mu.Lock()
	p.mu.Unlock()
	defer s.mu.Unlock()

	return s.r.Resolve(addr, forceUpdate)
}

// Release frees the resources of the resolver tracking pid, which removes the
// perf map file unless Options.KeepMapFile is set, and returns its slot to the
// free list. It returns false if pid was not tracked.
func (p *Pool) Release(pid libpf.PID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releaseLocked(pid)
}

func (p *Pool) releaseLocked(pid libpf.PID) bool {
	idx, ok := p.byPID[pid]
	if !ok {
		return false
	}
	s := p.slots[idx]
	s.mu.Lock()
	s.r.FreeResources()
	s.mu.Unlock()
	delete(p.byPID, pid)
	p.free = append(p.free, idx)
	p.released++
	log.Debugf("Released perf map slot %d of PID %d", idx, pid)
	return true
}

// Purge releases all tracked processes.
func (p *Pool) Purge() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for pid := range p.byPID {
		p.releaseLocked(pid)
	}
}

// Sweep releases every tracked process for which alive returns false and
// returns how many were released.
func (p *Pool) Sweep(alive func(libpf.PID) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for pid := range p.byPID {
		if alive(pid) {
			continue
		}
		if p.releaseLocked(pid) {
			n++
		}
	}
	return n
}

// StartSweeper periodically sweeps processes that have exited, using
// ProcessAlive. The returned function stops the sweeper.
func (p *Pool) StartSweeper(ctx context.Context, interval time.Duration) func() {
	return periodiccaller.StartWithJitter(ctx, interval, sweepJitter, func() {
		if n := p.Sweep(ProcessAlive); n > 0 {
			log.Debugf("Swept %d exited processes from the perf map pool", n)
		}
	})
}

// Len returns the number of tracked processes.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byPID)
}

// Cap returns the number of allocated resolver slots.
func (p *Pool) Cap() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// GetAndResetStatistics sums and resets the statistics of all slots,
// including free ones whose counters were not collected before release.
func (p *Pool) GetAndResetStatistics() Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sum Statistics
	for _, sl := range p.slots {
		s := sl.r.GetAndResetStatistics()
		sum.Refreshes += s.Refreshes
		sum.LinesParsed += s.LinesParsed
		sum.LinesSkipped += s.LinesSkipped
		sum.PartialLines += s.PartialLines
		sum.Hits += s.Hits
		sum.Misses += s.Misses
		sum.FilesRemoved += s.FilesRemoved
	}
	return sum
}

// ReportMetrics publishes the pool and interner statistics gathered since the
// previous call.
func (p *Pool) ReportMetrics() {
	s := p.GetAndResetStatistics()

	p.mu.Lock()
	tracked := len(p.byPID)
	released := p.released
	p.released = 0
	p.mu.Unlock()

	m := []metrics.Metric{
		{ID: metrics.IDPerfMapRefreshes, Value: metrics.MetricValue(s.Refreshes)},
		{ID: metrics.IDPerfMapLinesParsed, Value: metrics.MetricValue(s.LinesParsed)},
		{ID: metrics.IDPerfMapLinesSkipped, Value: metrics.MetricValue(s.LinesSkipped)},
		{ID: metrics.IDPerfMapPartialLines, Value: metrics.MetricValue(s.PartialLines)},
		{ID: metrics.IDPerfMapLookupHits, Value: metrics.MetricValue(s.Hits)},
		{ID: metrics.IDPerfMapLookupMisses, Value: metrics.MetricValue(s.Misses)},
		{ID: metrics.IDPerfMapFilesRemoved, Value: metrics.MetricValue(s.FilesRemoved)},
		{ID: metrics.IDPerfMapTrackedProcesses, Value: metrics.MetricValue(tracked)},
		{ID: metrics.IDPerfMapReleasedProcesses, Value: metrics.MetricValue(released)},
	}
	if src, ok := p.interner.(statisticsSource); ok {
		is := src.GetAndResetStatistics()
		m = append(m,
			metrics.Metric{ID: metrics.IDSymbolNameInternHits,
				Value: metrics.MetricValue(is.Hit)},
			metrics.Metric{ID: metrics.IDSymbolNameInternMisses,
				Value: metrics.MetricValue(is.Miss)},
			metrics.Metric{ID: metrics.IDSymbolNameInternEvictions,
				Value: metrics.MetricValue(is.Deleted)})
	}
	metrics.AddSlice(m)
}

// StartMetricsReporter calls ReportMetrics every interval until ctx is
// canceled. The returned function stops the reporter.
func (p *Pool) StartMetricsReporter(ctx context.Context, interval time.Duration) func() {
	return periodiccaller.Start(ctx, interval, p.ReportMetrics)
}

// ProcessAlive reports whether pid refers to an existing process.
func ProcessAlive(pid libpf.PID) bool {
	if pid == 0 {
		// kill(0, 0) would probe our own process group.
		return false
	}
	err := unix.Kill(int(pid), 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
