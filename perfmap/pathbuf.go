// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package perfmap // import "go.opentelemetry.io/perfmap/perfmap"

import (
	"strconv"

	"go.opentelemetry.io/perfmap/stringutil"
)

// pathBufferSize fits any /tmp/perf-<pid>.map path without growing.
const pathBufferSize = 128

// pathBuffer assembles a file path in place so that rebuilding it for a
// recycled resolver does not allocate.
type pathBuffer struct {
	buf []byte
}

func newPathBuffer() pathBuffer {
	return pathBuffer{buf: make([]byte, 0, pathBufferSize)}
}

func (b *pathBuffer) AppendString(s string) {
	b.buf = append(b.buf, s...)
}

// AppendUint appends v in decimal.
func (b *pathBuffer) AppendUint(v uint64) {
	b.buf = strconv.AppendUint(b.buf, v, 10)
}

func (b *pathBuffer) Reset() {
	b.buf = b.buf[:0]
}

func (b *pathBuffer) Empty() bool {
	return len(b.buf) == 0
}

// String returns the buffer contents without copying. The result is only
// valid until the next Reset.
func (b *pathBuffer) String() string {
	return stringutil.ByteSlice2String(b.buf)
}
