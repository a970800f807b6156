// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureRecords(t *testing.T) *[]Metric {
	t.Helper()
	var got []Metric
	orig := record
	record = func(_ context.Context, m Metric, _ MetricType) {
		got = append(got, m)
	}
	t.Cleanup(func() { record = orig })
	return &got
}

func TestDefinitions(t *testing.T) {
	defs := GetDefinitions()
	require.NotEmpty(t, defs)

	seen := make(map[MetricID]bool)
	for _, md := range defs {
		assert.Greater(t, md.ID, MetricID(IDInvalid), md.Name)
		assert.Less(t, md.ID, MetricID(IDMax), md.Name)
		assert.False(t, seen[md.ID], "duplicate id %d", md.ID)
		seen[md.ID] = true
		assert.Contains(t, []MetricType{MetricTypeCounter, MetricTypeGauge}, md.Type)
		assert.NotEmpty(t, md.Field)
		assert.NotEmpty(t, md.Description)
	}
	assert.Len(t, counters, 11)
	assert.Len(t, gauges, 1)
}

func TestAddSlice(t *testing.T) {
	got := captureRecords(t)

	AddSlice([]Metric{
		{IDPerfMapRefreshes, 3},
		{IDPerfMapLinesParsed, 0}, // zero counters are dropped
		{IDPerfMapTrackedProcesses, 0},
		{IDInvalid, 1},
		{IDMax, 1},
		{IDPerfMapLookupHits, 7},
	})

	assert.Equal(t, []Metric{
		{IDPerfMapRefreshes, 3},
		{IDPerfMapTrackedProcesses, 0},
		{IDPerfMapLookupHits, 7},
	}, *got)
}

func TestAddSliceRealInstruments(t *testing.T) {
	// Recording against the global no-op MeterProvider must not panic.
	assert.NotPanics(t, func() {
		AddSlice([]Metric{
			{IDPerfMapRefreshes, 1},
			{IDPerfMapTrackedProcesses, 2},
		})
	})
}
