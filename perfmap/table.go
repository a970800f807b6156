// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package perfmap // import "go.opentelemetry.io/perfmap/perfmap"

import (
	"cmp"
	"slices"
	"sort"

	"go.opentelemetry.io/perfmap/libpf"
	"go.opentelemetry.io/perfmap/symbolname"
)

// Interval maps the half open address range [Start, End) to a symbol.
type Interval struct {
	// Symbol is borrowed from the Interner, the interval never owns it.
	Symbol *symbolname.SymbolName
	Start  libpf.Address
	End    libpf.Address
}

// Contains reports whether addr lies within the interval.
func (iv *Interval) Contains(addr libpf.Address) bool {
	return addr >= iv.Start && addr < iv.End
}

// Table is a collection of possibly overlapping intervals. After Sort it is
// ordered ascending by End, which is the only order Lookup relies on.
type Table struct {
	intervals []Interval
}

// Append adds an interval. Lookup results are undefined until the next Sort.
func (t *Table) Append(iv Interval) {
	t.intervals = append(t.intervals, iv)
}

// Sort orders the table by End. Intervals with equal End keep the order in
// which they were appended.
func (t *Table) Sort() {
	slices.SortStableFunc(t.intervals, func(a, b Interval) int {
		return cmp.Compare(a.End, b.End)
	})
}

// Lookup returns the symbol of the first interval, in End order, whose End
// lies above addr, provided that interval also starts at or below addr.
// Intervals further along are not inspected, so with overlapping ranges a
// covering interval can be shadowed by a shorter one ending earlier.
func (t *Table) Lookup(addr libpf.Address) *symbolname.SymbolName {
	i := sort.Search(len(t.intervals), func(i int) bool {
		return addr < t.intervals[i].End
	})
	if i >= len(t.intervals) {
		return nil
	}
	if iv := &t.intervals[i]; iv.Contains(addr) {
		return iv.Symbol
	}
	return nil
}

// Len returns the number of intervals.
func (t *Table) Len() int {
	return len(t.intervals)
}

// Reset drops all intervals but keeps the allocated capacity. Symbol
// references are cleared so the interner's objects can be collected.
func (t *Table) Reset() {
	clear(t.intervals)
	t.intervals = t.intervals[:0]
}
