// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/perfmap/internal/controller"
	"go.opentelemetry.io/perfmap/libpf"
	"go.opentelemetry.io/perfmap/perfmap"
)

func TestParseArgs(t *testing.T) {
	cfg, err := parseArgs([]string{"-pid", "1,2", "-demangle", "-watch-interval", "5s",
		"-metrics-interval", "30s", "400000", "0x500000"})
	require.NoError(t, err)
	assert.Equal(t, "1,2", cfg.PIDs)
	assert.True(t, cfg.Demangle)
	assert.False(t, cfg.Watch)
	assert.Equal(t, 5*time.Second, cfg.WatchInterval)
	assert.Equal(t, 30*time.Second, cfg.MetricsInterval)
	assert.Equal(t, time.Duration(0), cfg.SweepInterval)
	assert.Equal(t, perfmap.DefaultMinRefreshInterval, cfg.MinRefreshInterval)
	assert.Equal(t, perfmap.DefaultMapDir, cfg.MapDir)
	assert.Equal(t, uint(defaultArgInternerSize), cfg.InternerSize)
	assert.False(t, cfg.RemoveMapFiles)
	assert.Equal(t, []string{"400000", "0x500000"}, cfg.Addresses)
	require.NoError(t, cfg.Validate())
}

func TestParseArgsEnvAndConfigFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "perfmap.conf")
	require.NoError(t, os.WriteFile(configFile,
		[]byte("map-dir /proc/7/root/tmp\nforce-update true\nunknown-option 1\n"), 0o600))
	t.Setenv("PERFMAP_PID", "7")

	cfg, err := parseArgs([]string{"-config", configFile})
	require.NoError(t, err)
	assert.Equal(t, "7", cfg.PIDs)
	assert.Equal(t, "/proc/7/root/tmp", cfg.MapDir)
	assert.True(t, cfg.ForceUpdate)
}

func TestParseArgsInvalid(t *testing.T) {
	_, err := parseArgs([]string{"-min-refresh-interval", "soon"})
	require.Error(t, err)
}

func TestReadAddresses(t *testing.T) {
	for name, tc := range map[string]struct {
		input    string
		expected []libpf.Address
		errMsg   string
	}{
		"plain": {
			input:    "400000\n0x500010\n",
			expected: []libpf.Address{0x400000, 0x500010},
		},
		"blank lines and comments": {
			input:    "\n# from perf script\n  7f7dd9db0480  \n\n",
			expected: []libpf.Address{0x7f7dd9db0480},
		},
		"no trailing newline": {
			input:    "10",
			expected: []libpf.Address{0x10},
		},
		"invalid": {
			input:  "10\nnope\n",
			errMsg: `line 2: invalid address "nope"`,
		},
		"empty": {
			input:  "\n\n",
			errMsg: "no address given",
		},
	} {
		t.Run(name, func(t *testing.T) {
			addrs, err := readAddresses(strings.NewReader(tc.input))
			if tc.errMsg != "" {
				require.ErrorContains(t, err, tc.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, addrs)
		})
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "perf-4242.map"),
		[]byte("400000 10 Foo\n500000 20 Bar\n"), 0o600))

	cfg, err := parseArgs([]string{"-pid", "4242", "-map-dir", dir})
	require.NoError(t, err)

	var out bytes.Buffer
	stdin := strings.NewReader("400005\n500010\n600000\n")
	require.NoError(t, run(context.Background(), cfg, stdin, &out))
	assert.Equal(t, "4242 0x400005 Foo\n4242 0x500010 Bar\n4242 0x600000 ??\n", out.String())
	assert.FileExists(t, filepath.Join(dir, "perf-4242.map"))
}

func TestRunParseErrors(t *testing.T) {
	for name, args := range map[string][]string{
		"no pid":       {"400000"},
		"bad address":  {"-pid", "1", "zz"},
		"no addresses": {"-pid", "1"},
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := parseArgs(args)
			require.NoError(t, err)

			err = run(context.Background(), cfg, strings.NewReader(""), &bytes.Buffer{})
			var withCode controller.ErrorWithExitCode
			require.True(t, errors.As(err, &withCode), "error %v", err)
			assert.Equal(t, int(exitParseError), withCode.Code())
		})
	}
}
