// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package perfmap

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/perfmap/libpf"
)

// deadPID is above the kernel's PID_MAX_LIMIT and thus never alive.
const deadPID = libpf.PID(1 << 30)

func newTestPool(t *testing.T, opts Options) *Pool {
	t.Helper()
	opts.MapDir = t.TempDir()
	return NewPool(newTestInterner(t), opts)
}

func TestPoolAcquire(t *testing.T) {
	newFakeClock(t)
	pool := newTestPool(t, DefaultOptions())

	a := pool.Acquire(1, libpf.Intern("/a"))
	b := pool.Acquire(2, libpf.Intern("/b"))
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotSame(t, a, b)
	assert.Same(t, a, pool.Acquire(1, libpf.Intern("/a")))
	assert.Same(t, b, pool.Get(2))
	assert.Nil(t, pool.Get(3))
	assert.Equal(t, 2, pool.Len())
	assert.Equal(t, 2, pool.Cap())
}

func TestPoolReusesReleasedSlots(t *testing.T) {
	newFakeClock(t)
	pool := newTestPool(t, DefaultOptions())

	a := pool.Acquire(1, libpf.Intern("/a"))
	appendMap(t, a, "400000 10 Foo\n")
	assert.Equal(t, "Foo", pool.Resolve(1, 0x400000, false).String())
	path := a.MapFilePath()

	assert.True(t, pool.Release(1))
	assert.False(t, pool.Release(1))
	assert.NoFileExists(t, path)
	assert.Nil(t, pool.Get(1))
	assert.Equal(t, 0, pool.Len())

	b := pool.Acquire(2, libpf.Intern("/b"))
	assert.Same(t, a, b, "released slot is recycled")
	assert.Equal(t, libpf.PID(2), b.PID())
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, int64(0), b.LastReadOffset())
	assert.Equal(t, 1, pool.Cap())
}

func TestPoolResolve(t *testing.T) {
	newFakeClock(t)
	pool := newTestPool(t, DefaultOptions())

	assert.Nil(t, pool.Resolve(1, 0x400000, true), "untracked pid")

	r := pool.Acquire(1, libpf.Intern("/a"))
	appendMap(t, r, "400000 10 Foo\n500000 20 Bar\n")

	tests := map[string]struct {
		addr     libpf.Address
		expected string
	}{
		"Foo":     {addr: 0x400005, expected: "Foo"},
		"Bar":     {addr: 0x500010, expected: "Bar"},
		"unknown": {addr: 0x600000},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			sym := pool.Resolve(1, tc.addr, false)
			if tc.expected == "" {
				assert.Nil(t, sym)
				return
			}
			require.NotNil(t, sym)
			assert.Equal(t, tc.expected, sym.String())
			assert.Equal(t, libpf.Intern("/a"), sym.Path)
		})
	}
}

func TestPoolSharesInterner(t *testing.T) {
	newFakeClock(t)
	pool := newTestPool(t, DefaultOptions())

	a := pool.Acquire(1, libpf.Intern("/usr/bin/node"))
	b := pool.Acquire(2, libpf.Intern("/usr/bin/node"))
	c := pool.Acquire(3, libpf.Intern("/usr/bin/dotnet"))
	for _, r := range []*Resolver{a, b, c} {
		appendMap(t, r, "1000 10 LazyCompile:main\n")
	}

	symA := pool.Resolve(1, 0x1000, false)
	symB := pool.Resolve(2, 0x1000, false)
	symC := pool.Resolve(3, 0x1000, false)
	require.NotNil(t, symA)
	require.NotNil(t, symC)
	assert.Same(t, symA, symB)
	assert.NotSame(t, symA, symC)
	assert.Equal(t, symA.Name, symC.Name)
}

func TestPoolSweep(t *testing.T) {
	newFakeClock(t)
	pool := newTestPool(t, DefaultOptions())
	for pid := libpf.PID(1); pid <= 5; pid++ {
		pool.Acquire(pid, libpf.NullString)
	}

	n := pool.Sweep(func(pid libpf.PID) bool { return pid%2 == 1 })
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, pool.Len())
	assert.Nil(t, pool.Get(2))
	assert.Nil(t, pool.Get(4))
	assert.NotNil(t, pool.Get(5))

	assert.Equal(t, 0, pool.Sweep(func(libpf.PID) bool { return true }))

	pool.Purge()
	assert.Equal(t, 0, pool.Len())
	assert.Equal(t, 5, pool.Cap())
}

func TestPoolStatistics(t *testing.T) {
	newFakeClock(t)
	pool := newTestPool(t, DefaultOptions())

	a := pool.Acquire(1, libpf.NullString)
	appendMap(t, a, "400000 10 Foo\nbad\n")
	b := pool.Acquire(2, libpf.NullString)
	appendMap(t, b, "400000 10 Bar\n")

	pool.Resolve(1, 0x400000, false)
	pool.Resolve(2, 0x400000, false)
	pool.Resolve(2, 0x900000, true)
	pool.Release(1)

	stats := pool.GetAndResetStatistics()
	assert.Equal(t, Statistics{
		Refreshes:    3,
		LinesParsed:  2,
		LinesSkipped: 1,
		Hits:         2,
		Misses:       1,
		FilesRemoved: 1,
	}, stats)
	assert.Equal(t, Statistics{}, pool.GetAndResetStatistics())

	assert.NotPanics(t, pool.ReportMetrics)
}

func TestPoolStartSweeper(t *testing.T) {
	pool := newTestPool(t, DefaultOptions())
	self := libpf.PID(os.Getpid())
	pool.Acquire(self, libpf.NullString)
	pool.Acquire(deadPID, libpf.NullString)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := pool.StartSweeper(ctx, 10*time.Millisecond)
	defer stop()

	assert.Eventually(t, func() bool {
		return pool.Get(deadPID) == nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotNil(t, pool.Get(self))
}

func TestProcessAlive(t *testing.T) {
	tests := map[string]struct {
		pid      libpf.PID
		expected bool
	}{
		"self":     {pid: libpf.PID(os.Getpid()), expected: true},
		"init":     {pid: 1, expected: true},
		"zero":     {pid: 0, expected: false},
		"past max": {pid: deadPID, expected: false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ProcessAlive(tc.pid))
		})
	}
}

func TestPoolResolveLocksPerSlot(t *testing.T) {
	newFakeClock(t)
	pool := newTestPool(t, DefaultOptions())
	a := pool.Acquire(1, libpf.NullString)
	appendMap(t, a, "400000 10 Foo\n")
	pool.Acquire(2, libpf.NullString)

	// Hold the slot of pid 2 as if its map file were being read.
	busy := pool.slots[pool.byPID[2]]
	busy.mu.Lock()

	done := make(chan string, 1)
	go func() {
		sym := pool.Resolve(1, 0x400000, true)
		if sym == nil {
			done <- ""
			return
		}
		done <- sym.String()
	}()

	select {
	case name := <-done:
		assert.Equal(t, "Foo", name)
	case <-time.After(2 * time.Second):
		assert.Fail(t, "resolving pid 1 waited for the slot of pid 2")
	}
	busy.mu.Unlock()
}

func TestPoolResolveConcurrent(t *testing.T) {
	newFakeClock(t)
	pool := newTestPool(t, DefaultOptions())
	for pid := libpf.PID(1); pid <= 4; pid++ {
		appendMap(t, pool.Acquire(pid, libpf.NullString), "400000 10 Foo\n")
	}

	var wg sync.WaitGroup
	for pid := libpf.PID(1); pid <= 4; pid++ {
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 50 {
					pool.Resolve(pid, 0x400000, false)
					pool.Resolve(pid, 0x900000, true)
				}
			}()
		}
	}
	// Sweeping concurrently with lookups must be safe.
	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.Sweep(func(pid libpf.PID) bool { return pid != 4 })
	}()
	wg.Wait()

	assert.Equal(t, 3, pool.Len())
	for pid := libpf.PID(1); pid <= 3; pid++ {
		sym := pool.Resolve(pid, 0x400000, false)
		require.NotNil(t, sym)
		assert.Equal(t, "Foo", sym.String())
	}
}

func TestPoolStartMetricsReporter(t *testing.T) {
	newFakeClock(t)
	pool := newTestPool(t, DefaultOptions())
	r := pool.Acquire(1, libpf.NullString)
	appendMap(t, r, "400000 10 Foo\n")
	require.NotNil(t, pool.Resolve(1, 0x400000, false))
	require.True(t, pool.Release(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := pool.StartMetricsReporter(ctx, 10*time.Millisecond)
	defer stop()

	// Each report drains the counters it published.
	assert.Eventually(t, func() bool {
		pool.mu.Lock()
		released := pool.released
		pool.mu.Unlock()
		return released == 0 && r.counters.hits.Load() == 0 &&
			r.counters.refreshes.Load() == 0 && r.counters.filesRemoved.Load() == 0
	}, 2*time.Second, 5*time.Millisecond)
}
