// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package libpf // import "go.opentelemetry.io/perfmap/libpf"

import (
	"strconv"
	"strings"
)

// Address represents an instruction address inside a profiled process.
type Address uint64

// ParseAddress parses a base-16 address. An optional 0x or 0X prefix is accepted
// to match the strtoull(3) behavior that map file writers rely on.
func ParseAddress(s string) (Address, error) {
	v, err := ParseHex(s)
	return Address(v), err
}

// ParseHex parses a base-16 unsigned integer with an optional 0x or 0X prefix.
func ParseHex(s string) (uint64, error) {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	// Reject a leading sign which ParseUint would refuse anyway, but with a
	// less helpful error message.
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseUint(s, 16, 64)
}

// String returns the address in 0x-prefixed hex.
func (adr Address) String() string {
	return "0x" + strconv.FormatUint(uint64(adr), 16)
}
