// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

/*
Package metrics contains the code for reporting resolver and interner metrics.

Metric definitions live in metrics.json. Every definition becomes an OTel
Int64Counter or Int64Gauge named after its "field" value, registered with the
global MeterProvider. The numeric IDs in ids.go are generated from the same file:

	go generate ./metrics

Producers keep cheap local counters on their hot paths and hand deltas to
AddSlice from time to time, e.g.

	metrics.AddSlice([]metrics.Metric{
		{ID: metrics.IDPerfMapRefreshes, Value: 3},
		{ID: metrics.IDPerfMapLinesParsed, Value: 1200},
	})

Counters with a zero value are dropped.
*/
package metrics
