// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// perfmap-resolve resolves addresses of JIT compiled code to symbol names using
// the perf map files written by the profiled runtimes.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"go.opentelemetry.io/perfmap/internal/controller"
	"go.opentelemetry.io/perfmap/libpf"
)

type exitCode int

const (
	exitSuccess exitCode = 0
	exitFailure exitCode = 1

	// Go 'flag' package calls os.Exit(2) on flag parse errors, if ExitOnError is set
	exitParseError exitCode = 2
)

func main() {
	os.Exit(int(mainWithExitCode()))
}

func mainWithExitCode() exitCode {
	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitSuccess
		}
		return parseError("Failure to parse arguments: %v", err)
	}

	if cfg.VerboseMode {
		log.SetLevel(log.DebugLevel)
		// Dump the arguments in debug mode.
		cfg.Dump()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer cancel()

	if err = run(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		var withCode controller.ErrorWithExitCode
		if errors.As(err, &withCode) {
			log.Error(err)
			return exitCode(withCode.Code())
		}
		return failure("%v", err)
	}
	return exitSuccess
}

func run(ctx context.Context, cfg *controller.Config, stdin io.Reader, stdout io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return controller.ExitCodeError(err, int(exitParseError))
	}
	addrs, err := controller.ParseAddresses(cfg.Addresses)
	if err != nil {
		return controller.ExitCodeError(err, int(exitParseError))
	}
	if len(addrs) == 0 {
		if addrs, err = readAddresses(stdin); err != nil {
			return controller.ExitCodeError(err, int(exitParseError))
		}
	}

	ctlr := controller.New(cfg)
	if err = ctlr.Start(ctx); err != nil {
		return err
	}
	defer ctlr.Shutdown()

	if cfg.Watch {
		usr1 := make(chan os.Signal, 1)
		signal.Notify(usr1, unix.SIGUSR1)
		defer signal.Stop(usr1)
		go func() {
			for {
				select {
				case <-usr1:
					log.Debug("Forcing map file re-read")
					ctlr.Trigger()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	return ctlr.Run(ctx, addrs, stdout)
}

// readAddresses reads one hex address per line. Empty lines and lines starting
// with # are skipped.
func readAddresses(r io.Reader) ([]libpf.Address, error) {
	var addrs []libpf.Address
	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addr, err := libpf.ParseAddress(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid address %q: %w", lineNo, line, err)
		}
		addrs = append(addrs, addr)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read addresses: %w", err)
	}
	if len(addrs) == 0 {
		return nil, errors.New("no address given")
	}
	return addrs, nil
}

func parseError(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitParseError
}

func failure(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitFailure
}
