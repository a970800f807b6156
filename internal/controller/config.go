// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "go.opentelemetry.io/perfmap/internal/controller"

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/perfmap/libpf"
)

var (
	errNoPID          = errors.New("no process ID given")
	errNoAddress      = errors.New("no address given")
	errInternerSize   = errors.New("interner size must be between 1 and 2^32-1")
	errNegativeWindow = errors.New("intervals must not be negative")
)

// Config holds the command line configuration of perfmap-resolve.
type Config struct {
	PIDs               string
	MapDir             string
	MinRefreshInterval time.Duration
	ForceUpdate        bool
	Demangle           bool
	Watch              bool
	WatchInterval      time.Duration
	SweepInterval      time.Duration
	MetricsInterval    time.Duration
	InternerSize       uint
	RemoveMapFiles     bool
	VerboseMode        bool

	// Addresses are the positional arguments. If empty, addresses are read
	// from stdin.
	Addresses []string

	Fs *flag.FlagSet
}

// Dump visits all flag sets, and dumps them all to debug
// Used for verbose mode logging.
func (cfg *Config) Dump() {
	log.Debug("Config:")
	cfg.Fs.VisitAll(func(f *flag.Flag) {
		log.Debug(fmt.Sprintf("%s: %v", f.Name, f.Value))
	})
}

// Validate runs validations on the provided configuration, and returns errors
// if invalid values were provided.
func (cfg *Config) Validate() error {
	if _, err := cfg.ParsePIDs(); err != nil {
		return err
	}
	if _, err := ParseAddresses(cfg.Addresses); err != nil {
		return err
	}
	if cfg.InternerSize == 0 || uint64(cfg.InternerSize) > math.MaxUint32 {
		return fmt.Errorf("%w: %d", errInternerSize, cfg.InternerSize)
	}
	if cfg.MinRefreshInterval < 0 || cfg.WatchInterval < 0 || cfg.SweepInterval < 0 ||
		cfg.MetricsInterval < 0 {
		return errNegativeWindow
	}
	if cfg.Watch && cfg.WatchInterval == 0 {
		return errors.New("watch mode requires a positive watch interval")
	}
	return nil
}

// ParsePIDs parses the comma separated list of process IDs. Duplicates are
// dropped while keeping the order of first occurrence.
func (cfg *Config) ParsePIDs() ([]libpf.PID, error) {
	var pids []libpf.PID
	seen := make(map[libpf.PID]struct{})
	for field := range strings.SplitSeq(cfg.PIDs, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseUint(field, 10, 32)
		if err != nil || v == 0 {
			return nil, fmt.Errorf("invalid process ID %q", field)
		}
		pid := libpf.PID(v)
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		pids = append(pids, pid)
	}
	if len(pids) == 0 {
		return nil, errNoPID
	}
	return pids, nil
}

// ParseAddresses parses hex addresses, with or without 0x prefix.
func ParseAddresses(args []string) ([]libpf.Address, error) {
	addrs := make([]libpf.Address, 0, len(args))
	for _, arg := range args {
		addr, err := libpf.ParseAddress(strings.TrimSpace(arg))
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", arg, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
