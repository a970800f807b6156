// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "go.opentelemetry.io/perfmap/metrics"

// Create ids.go from metrics.json
//go:generate go run genids/main.go metrics.json ids.go

// MetricID is the type for metric IDs.
type MetricID uint16

// MetricValue is the type for metric values.
type MetricValue int64

// MetricType distinguishes monotonic counters from gauges.
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// Metric is the type for a metric id/value pair.
type Metric struct {
	ID    MetricID
	Value MetricValue
}

// MetricDefinition is one entry of metrics.json.
type MetricDefinition struct {
	Description string     `json:"description"`
	Type        MetricType `json:"type"`
	Name        string     `json:"name"`
	Field       string     `json:"field"`
	Unit        string     `json:"unit"`
	ID          MetricID   `json:"id"`
	Obsolete    bool       `json:"obsolete"`
}
