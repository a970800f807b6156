// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package periodiccaller allows periodic calls of functions.
package periodiccaller // import "go.opentelemetry.io/perfmap/periodiccaller"

import (
	"context"
	"time"

	"go.opentelemetry.io/perfmap/libpf"
)

// run calls callback(false) every next() until ctx is canceled, and
// callback(true) whenever a value arrives on trigger. A nil trigger never fires.
// The returned function stops the timer; the goroutine exits with ctx.
func run(ctx context.Context, next func() time.Duration, trigger <-chan bool,
	callback func(manualTrigger bool)) func() {
	timer := time.NewTimer(next())
	go func() {
		defer timer.Stop()

		for {
			select {
			case <-timer.C:
				callback(false)
				timer.Reset(next())
			case <-trigger:
				callback(true)
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() { timer.Stop() }
}

// Start starts a timer that calls <callback> every <interval> until the <ctx> is canceled.
func Start(ctx context.Context, interval time.Duration, callback func()) func() {
	return run(ctx, func() time.Duration { return interval }, nil,
		func(bool) { callback() })
}

// StartWithManualTrigger starts a timer that calls <callback> every <interval>
// until the <ctx> is canceled. Additionally the 'trigger' channel can be used
// to trigger callback immediately, in which case callback receives true.
func StartWithManualTrigger(ctx context.Context, interval time.Duration, trigger <-chan bool,
	callback func(manualTrigger bool)) func() {
	return run(ctx, func() time.Duration { return interval }, trigger, callback)
}

// StartWithJitter starts a timer that calls <callback> every <baseDuration+jitter>
// until the <ctx> is canceled. <jitter>, [0..1], is used to add +/- jitter
// to <baseDuration> at every iteration of the timer.
func StartWithJitter(ctx context.Context, baseDuration time.Duration, jitter float64,
	callback func()) func() {
	return run(ctx, jittered(baseDuration, jitter), nil, func(bool) { callback() })
}

// jittered returns a generator of intervals within baseDuration +/- jitter.
func jittered(baseDuration time.Duration, jitter float64) func() time.Duration {
	return func() time.Duration { return libpf.AddJitter(baseDuration, jitter) }
}
