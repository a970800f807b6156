// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package libpf // import "go.opentelemetry.io/perfmap/libpf"

import (
	"unique"

	"github.com/zeebo/xxh3"
)

// String is an interned string. This is a wrapper for unique.Handle[string],
// but provides String() to be usable as printf, and also treats the default
// initializer as the empty string.
type String struct {
	value unique.Handle[string]
}

var NullString = String{unique.Handle[string]{}}

func Intern(str string) String {
	if str == "" {
		return NullString
	}
	return String{unique.Make(str)}
}

func (s String) String() string {
	if s == NullString {
		return ""
	}
	return s.value.Value()
}

// IsNull reports whether s is the interned empty string.
func (s String) IsNull() bool {
	return s == NullString
}

// Hash64 returns the xxh3 hash of the string contents. Equal strings hash
// equally regardless of which handle they were interned through.
func (s String) Hash64() uint64 {
	return xxh3.HashString(s.String())
}
