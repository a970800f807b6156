// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package symbolname provides the shared, deduplicated symbol name objects that
// resolvers hand out, and the interning table that owns them.
package symbolname // import "go.opentelemetry.io/perfmap/symbolname"

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/ianlancetaylor/demangle"

	"go.opentelemetry.io/perfmap/libpf"
	"go.opentelemetry.io/perfmap/libpf/freelru"
)

// ErrInvalidCapacity is returned by NewTable for a zero capacity.
var ErrInvalidCapacity = errors.New("interner capacity must be greater than zero")

// SymbolName is an interned symbol name together with the path grouping it was
// interned under. Values are shared between all resolvers using the same
// Interner and must be treated as read-only.
type SymbolName struct {
	Name libpf.String
	Path libpf.String
}

// String returns the raw symbol name.
func (s *SymbolName) String() string {
	return s.Name.String()
}

// Demangled returns the demangled symbol name, or the raw name if it is not a
// mangled C++ or Rust symbol.
func (s *SymbolName) Demangled() string {
	return demangle.Filter(s.Name.String(), demangle.NoParams)
}

// Interner deduplicates symbol names. Implementations are shared across
// resolvers and must be safe for concurrent use.
//
// name may alias a caller owned buffer that is reused after Intern returns,
// so implementations must copy it before retaining it.
type Interner interface {
	Intern(name string, path libpf.String) *SymbolName
}

type key struct {
	name libpf.String
	path libpf.String
}

func hashKey(k key) uint32 {
	h := k.name.Hash64() ^ bits.RotateLeft64(k.path.Hash64(), 17)
	return uint32(h ^ h>>32)
}

// Table is a bounded Interner. Least recently interned names are dropped from
// the table once capacity is reached; SymbolName objects still referenced by
// resolvers stay valid, they only stop being deduplicated against.
type Table struct {
	mu  sync.Mutex
	lru *freelru.LRU[key, *SymbolName]
}

var _ Interner = (*Table)(nil)

// NewTable creates an interning table holding up to capacity names.
func NewTable(capacity uint32) (*Table, error) {
	if capacity == 0 {
		return nil, ErrInvalidCapacity
	}
	cache, err := freelru.New[key, *SymbolName](capacity, hashKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create symbol name LRU: %w", err)
	}
	return &Table{lru: cache}, nil
}

// Intern returns the shared SymbolName for name under the path grouping.
func (t *Table) Intern(name string, path libpf.String) *SymbolName {
	// libpf.Intern copies name, so the key never aliases the caller's buffer.
	k := key{name: libpf.Intern(name), path: path}

	t.mu.Lock()
	defer t.mu.Unlock()
	sym, _ := t.lru.GetOrAdd(k, func() *SymbolName {
		return &SymbolName{Name: k.name, Path: path}
	})
	return sym
}

// Len returns the number of names currently held.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Len()
}

// Purge drops all names from the table.
func (t *Table) Purge() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lru.Purge()
}

// GetAndResetStatistics returns the lookup statistics since the previous call.
func (t *Table) GetAndResetStatistics() freelru.Statistics {
	return t.lru.GetAndResetStatistics()
}
