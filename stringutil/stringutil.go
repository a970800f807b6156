// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package stringutil // import "go.opentelemetry.io/perfmap/stringutil"

import (
	"iter"
	"unsafe"
)

var asciiSpace = [256]uint8{'\t': 1, '\n': 1, '\v': 1, '\f': 1, '\r': 1, ' ': 1}

// Span locates one field inside the string it was produced from.
type Span struct {
	Offset int
	Length int
}

// Of returns the substring of s covered by the span. s must be the string
// the span was produced from.
func (sp Span) Of(s string) string {
	return s[sp.Offset : sp.Offset+sp.Length]
}

// FieldSpans returns a sequence of at most n field spans of s. Fields are
// separated by one or more consecutive space characters. The n-th span covers
// the unparsed remainder of s starting with its first non-space character,
// so embedded and trailing white space of the remainder is kept verbatim.
//
// The sequence can be ranged over any number of times and does not allocate.
func FieldSpans(s string, n int) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		si := 0
		for i := 0; i < n; i++ {
			// Find the start of the next field.
			for si < len(s) && asciiSpace[s[si]] != 0 {
				si++
			}
			if si >= len(s) {
				return
			}
			fieldStart := si

			if i == n-1 {
				yield(Span{Offset: fieldStart, Length: len(s) - fieldStart})
				return
			}

			// Find the end of the field.
			for si < len(s) && asciiSpace[s[si]] == 0 {
				si++
			}
			if !yield(Span{Offset: fieldStart, Length: si - fieldStart}) {
				return
			}
		}
	}
}

// FieldsN splits the string s around each instance of one or more consecutive space
// characters, filling f with substrings of s.
// If s contains more fields than len(f), the last element of f is set to the
// unparsed remainder of s starting with the first non-space character.
// f will stay untouched if s is empty or contains only white space.
//
// Apart from the mentioned differences, FieldsN is like an allocation-free strings.Fields.
func FieldsN(s string, f []string) int {
	n := 0
	for sp := range FieldSpans(s, len(f)) {
		f[n] = sp.Of(s)
		n++
	}
	return n
}

// ByteSlice2String converts a byte slice into a string without a heap allocation.
// The byte slice must not be modified while the string is in use.
func ByteSlice2String(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}
