// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/peterbourgon/ff/v3"

	"go.opentelemetry.io/perfmap/internal/controller"
	"go.opentelemetry.io/perfmap/perfmap"
)

const (
	// Default values for CLI flags
	defaultArgWatchInterval   = time.Second
	defaultArgInternerSize    = 16384
	defaultArgMapDir          = perfmap.DefaultMapDir
	defaultArgSweepInterval   = 0
	defaultArgMetricsInterval = 0
)

// Help strings for command line arguments
var (
	configHelp             = "Path to a plain text configuration file."
	demangleHelp           = "Demangle C++ and Rust symbol names."
	forceUpdateHelp        = "Re-read the map file on every miss, ignoring min-refresh-interval."
	mapDirHelp             = "Directory holding the perf-<pid>.map files."
	metricsIntervalHelp    = "Interval for publishing resolver metrics. 0 disables the reporter."
	minRefreshIntervalHelp = "Minimum time between two re-reads of a map file after a miss."
	pidHelp                = "Comma-separated list of process IDs whose perf maps are read."
	removeMapFilesHelp     = "Delete the perf map files of released processes."
	sweepIntervalHelp      = "Interval for releasing processes that have exited. 0 disables sweeping."
	verboseModeHelp        = "Enable verbose logging and debugging capabilities."
	watchIntervalHelp      = "Time between two resolution attempts in watch mode."
	internerSizeHelp       = fmt.Sprintf("Maximum number of deduplicated symbol names. "+
		"Default is %d.", defaultArgInternerSize)
	watchHelp = "Keep re-resolving unresolved addresses until they resolve or " +
		"the program is interrupted. SIGUSR1 forces an immediate re-read."
)

func parseArgs(args []string) (*controller.Config, error) {
	var cfg controller.Config

	fs := flag.NewFlagSet("perfmap-resolve", flag.ContinueOnError)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.String("config", "", configHelp)

	fs.BoolVar(&cfg.Demangle, "demangle", false, demangleHelp)

	fs.BoolVar(&cfg.ForceUpdate, "force-update", false, forceUpdateHelp)

	fs.UintVar(&cfg.InternerSize, "interner-size", defaultArgInternerSize, internerSizeHelp)

	fs.StringVar(&cfg.MapDir, "map-dir", defaultArgMapDir, mapDirHelp)

	fs.DurationVar(&cfg.MetricsInterval, "metrics-interval", defaultArgMetricsInterval,
		metricsIntervalHelp)

	fs.DurationVar(&cfg.MinRefreshInterval, "min-refresh-interval",
		perfmap.DefaultMinRefreshInterval, minRefreshIntervalHelp)

	fs.StringVar(&cfg.PIDs, "pid", "", pidHelp)

	fs.BoolVar(&cfg.RemoveMapFiles, "remove-map-files", false, removeMapFilesHelp)

	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", defaultArgSweepInterval,
		sweepIntervalHelp)

	fs.BoolVar(&cfg.VerboseMode, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&cfg.VerboseMode, "verbose", false, verboseModeHelp)

	fs.BoolVar(&cfg.Watch, "watch", false, watchHelp)
	fs.DurationVar(&cfg.WatchInterval, "watch-interval", defaultArgWatchInterval,
		watchIntervalHelp)

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: perfmap-resolve [flags] [addr...]\n")
		fs.PrintDefaults()
	}

	cfg.Fs = fs

	err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("PERFMAP"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		// This will ignore configuration file (only) options that the current
		// version does not recognize.
		ff.WithIgnoreUndefined(true),
		ff.WithAllowMissingConfigFile(true),
	)
	cfg.Addresses = fs.Args()
	return &cfg, err
}
