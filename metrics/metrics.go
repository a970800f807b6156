// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "go.opentelemetry.io/perfmap/metrics"

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	//go:embed metrics.json
	metricsJSON []byte

	// Used in fallback checks, e.g. to avoid sending "counters" with 0 values
	metricTypes map[MetricID]MetricType

	// OTel metric instrumentation
	meter    = otel.Meter("go.opentelemetry.io/perfmap")
	counters = map[MetricID]metric.Int64Counter{}
	gauges   = map[MetricID]metric.Int64Gauge{}
)

func init() {
	defs := GetDefinitions()
	metricTypes = make(map[MetricID]MetricType, len(defs))
	for _, md := range defs {
		if md.Obsolete {
			continue
		}
		metricTypes[md.ID] = md.Type
		switch typ := md.Type; typ {
		case MetricTypeCounter:
			counter, err := meter.Int64Counter(md.Field,
				metric.WithDescription(md.Description),
				metric.WithUnit(md.Unit))
			if err != nil {
				log.Errorf("Creating Int64Counter: %v", err)
				continue
			}
			counters[md.ID] = counter
		case MetricTypeGauge:
			gauge, err := meter.Int64Gauge(md.Field,
				metric.WithDescription(md.Description),
				metric.WithUnit(md.Unit))
			if err != nil {
				log.Errorf("Creating Int64Gauge: %v", err)
				continue
			}
			gauges[md.ID] = gauge
		default:
			panic(fmt.Sprintf("Unknown metric type: %v", typ))
		}
	}
}

// record forwards one validated metric to its OTel instrument.
// Allow for record to be overridden in the test.
var record = func(ctx context.Context, m Metric, typ MetricType) {
	switch typ {
	case MetricTypeCounter:
		if counter, ok := counters[m.ID]; ok {
			counter.Add(ctx, int64(m.Value))
		}
	case MetricTypeGauge:
		if gauge, ok := gauges[m.ID]; ok {
			gauge.Record(ctx, int64(m.Value))
		}
	}
}

// AddSlice takes a slice of metrics from a metric provider and records them.
// Invalid IDs are logged and skipped.
func AddSlice(newMetrics []Metric) {
	ctx := context.Background()
	for _, m := range newMetrics {
		if m.ID <= IDInvalid || m.ID >= IDMax {
			log.Errorf("Metric value %d out of range [%d,%d]- needs investigation",
				m.ID, IDInvalid+1, IDMax-1)
			continue
		}

		typ, ok := metricTypes[m.ID]
		if !ok {
			log.Warnf("Invalid metric id %d, skipping", m.ID)
			continue
		}

		if m.Value == 0 && typ == MetricTypeCounter {
			continue
		}
		record(ctx, m, typ)
	}
}

// GetDefinitions returns the metric definitions from the embedded metrics.json file.
func GetDefinitions() []MetricDefinition {
	var defs []MetricDefinition

	dec := json.NewDecoder(bytes.NewReader(metricsJSON))
	dec.DisallowUnknownFields()

	err := dec.Decode(&defs)
	if err != nil {
		panic(fmt.Sprintf("extracting definitions from metrics.json: %v", err))
	}
	return defs
}
