// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "go.opentelemetry.io/perfmap/internal/controller"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/perfmap/libpf"
	"go.opentelemetry.io/perfmap/perfmap"
	"go.opentelemetry.io/perfmap/periodiccaller"
	"go.opentelemetry.io/perfmap/symbolname"
)

// unresolved is printed for addresses without symbol.
const unresolved = "??"

// Controller is an instance that runs, manages and stops address resolution.
type Controller struct {
	config   *Config
	interner *symbolname.Table
	pool     *perfmap.Pool

	stopSweeper func()
	stopMetrics func()

	mu       sync.Mutex
	triggers map[libpf.PID]chan bool

	// executable returns the grouping path of a process.
	executable func(pid libpf.PID) libpf.String
}

// New creates a new controller
func New(cfg *Config) *Controller {
	return &Controller{
		config:     cfg,
		triggers:   make(map[libpf.PID]chan bool),
		executable: executablePath,
	}
}

// Start creates the shared interner and resolver pool, and starts the
// sweeper and the metrics reporter if their intervals are configured.
func (c *Controller) Start(ctx context.Context) error {
	interner, err := symbolname.NewTable(uint32(c.config.InternerSize))
	if err != nil {
		return fmt.Errorf("failed to create symbol interner: %w", err)
	}
	c.interner = interner
	c.pool = perfmap.NewPool(interner, perfmap.Options{
		MinRefreshInterval: c.config.MinRefreshInterval,
		MapDir:             c.config.MapDir,
		KeepMapFile:        !c.config.RemoveMapFiles,
	})

	if c.config.SweepInterval > 0 {
		c.stopSweeper = c.pool.StartSweeper(ctx, c.config.SweepInterval)
		log.Debugf("Sweeping exited processes every %v", c.config.SweepInterval)
	}
	if c.config.MetricsInterval > 0 {
		c.stopMetrics = c.pool.StartMetricsReporter(ctx, c.config.MetricsInterval)
		log.Debugf("Reporting metrics every %v", c.config.MetricsInterval)
	}
	return nil
}

// Run resolves addrs in every configured process and writes one
// "<pid> <addr> <symbol>" line per address to out. Processes are resolved
// concurrently, each by its own pooled resolver.
func (c *Controller) Run(ctx context.Context, addrs []libpf.Address, out io.Writer) error {
	if c.pool == nil {
		return errors.New("controller not started")
	}
	pids, err := c.config.ParsePIDs()
	if err != nil {
		return err
	}

	w := &lineWriter{out: out}
	g, gctx := errgroup.WithContext(ctx)
	for _, pid := range pids {
		c.pool.Acquire(pid, c.executable(pid))
		g.Go(func() error {
			return c.resolveProcess(gctx, pid, addrs, w)
		})
	}
	return g.Wait()
}

// Trigger makes all watching processes re-read their map files right away.
func (c *Controller) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.triggers {
		select {
		case ch <- true:
		default:
		}
	}
}

// Shutdown reports the final metrics and releases all tracked processes.
func (c *Controller) Shutdown() {
	if c.stopSweeper != nil {
		c.stopSweeper()
	}
	if c.stopMetrics != nil {
		c.stopMetrics()
	}
	if c.pool == nil {
		return
	}
	c.pool.ReportMetrics()
	c.pool.Purge()
	log.Debugf("Released all perf map resolvers")
}

func (c *Controller) resolveProcess(ctx context.Context, pid libpf.PID,
	addrs []libpf.Address, w *lineWriter) error {
	pending := c.resolvePending(pid, addrs, w, c.config.ForceUpdate)
	if !c.config.Watch || len(pending) == 0 {
		return w.unresolved(pid, pending)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	trigger := make(chan bool, 1)
	c.mu.Lock()
	c.triggers[pid] = trigger
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.triggers, pid)
		c.mu.Unlock()
	}()

	wake := make(chan bool, 1)
	stop := periodiccaller.StartWithManualTrigger(ctx, c.config.WatchInterval, trigger,
		func(manualTrigger bool) {
			select {
			case wake <- manualTrigger:
			default:
			}
		})
	defer stop()

	log.Debugf("Watching PID %d for %d unresolved addresses", pid, len(pending))
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return w.unresolved(pid, pending)
		case manualTrigger := <-wake:
			if c.pool.Get(pid) == nil {
				log.Infof("PID %d exited, giving up on %d addresses", pid, len(pending))
				return w.unresolved(pid, pending)
			}
			pending = c.resolvePending(pid, pending, w,
				manualTrigger || c.config.ForceUpdate)
		}
	}
	return nil
}

// resolvePending writes the addresses that resolve and returns the rest.
func (c *Controller) resolvePending(pid libpf.PID, addrs []libpf.Address, w *lineWriter,
	forceUpdate bool) []libpf.Address {
	var pending []libpf.Address
	for _, addr := range addrs {
		sym := c.pool.Resolve(pid, addr, forceUpdate)
		if sym == nil {
			pending = append(pending, addr)
			continue
		}
		name := sym.String()
		if c.config.Demangle {
			name = sym.Demangled()
		}
		if err := w.write(pid, addr, name); err != nil {
			log.Errorf("Failed to write result: %v", err)
		}
	}
	return pending
}

// lineWriter serializes result lines of concurrently resolved processes.
type lineWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *lineWriter) write(pid libpf.PID, addr libpf.Address, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.out, "%d %v %s\n", pid, addr, name)
	return err
}

func (w *lineWriter) unresolved(pid libpf.PID, addrs []libpf.Address) error {
	for _, addr := range addrs {
		if err := w.write(pid, addr, unresolved); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}
	return nil
}

// executablePath returns the interned executable of pid, or the null string
// if the process is gone or not accessible.
func executablePath(pid libpf.PID) libpf.String {
	exe, err := os.Readlink("/proc/" + strconv.FormatUint(uint64(pid), 10) + "/exe")
	if err != nil {
		log.Debugf("Failed to read executable of PID %d: %v", pid, err)
		return libpf.NullString
	}
	return libpf.Intern(exe)
}
