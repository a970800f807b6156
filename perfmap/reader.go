// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package perfmap // import "go.opentelemetry.io/perfmap/perfmap"

import (
	"bufio"
	"errors"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/perfmap/libpf"
	"go.opentelemetry.io/perfmap/stringutil"
)

// readBufferSize is the bufio buffer used for tailing. Longer lines are
// assembled in the line scratch buffer.
const readBufferSize = 16 * 1024

// mapFilePath returns the perf map path of the tracked process, building it
// on first use.
func (r *Resolver) mapFilePath() string {
	if r.pathBuffer.Empty() {
		r.pathBuffer.AppendString(r.mapDir)
		r.pathBuffer.AppendString("/perf-")
		r.pathBuffer.AppendUint(uint64(r.pid))
		r.pathBuffer.AppendString(".map")
	}
	return r.pathBuffer.String()
}

// update reads the lines appended to the perf map file since the previous
// update and merges them into the table.
//
// Line format:
//
//	address          size name (may contain spaces)
//	00007F7DD9DB0480 2d   instance bool [System.Private.CoreLib] dynamicClass::IL_STUB_UnboxingStub()
func (r *Resolver) update() {
	if r.interner == nil {
		return
	}
	r.counters.refreshes.Add(1)

	path := r.mapFilePath()
	file, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Debugf("Failed to open perf map %s: %v", path, err)
		}
		return
	}
	defer file.Close()

	if _, err = file.Seek(r.lastReadOffset, io.SeekStart); err != nil {
		log.Debugf("Failed to seek perf map %s to %d: %v", path, r.lastReadOffset, err)
		return
	}

	if r.reader == nil {
		r.reader = bufio.NewReaderSize(file, readBufferSize)
	} else {
		r.reader.Reset(file)
	}
	// Drop the file reference so a pooled resolver does not pin it.
	defer r.reader.Reset(nil)

	if parsed := r.consumeLines(r.reader); parsed > 0 {
		r.table.Sort()
		log.Debugf("Parsed %d new symbols from %s (%d total, offset %d)",
			parsed, path, r.table.Len(), r.lastReadOffset)
	}
}

// consumeLines parses all newline terminated lines available from rd and
// advances lastReadOffset past each of them. A trailing line without newline
// is left unconsumed. Returns the number of intervals added.
func (r *Resolver) consumeLines(rd *bufio.Reader) int {
	parsed := 0
	for {
		complete, err := r.readLine(rd)
		if !complete {
			if len(r.line) > 0 {
				// The writer is in the middle of this line. It is re-read
				// from its start by the next update.
				r.counters.partialLines.Add(1)
			}
			if err != nil && !errors.Is(err, io.EOF) {
				log.Debugf("Failed to read perf map %s: %v", r.mapFilePath(), err)
			}
			return parsed
		}

		r.lastReadOffset += int64(len(r.line))
		if r.parseLine(r.line[:len(r.line)-1]) {
			parsed++
		} else {
			r.counters.linesSkipped.Add(1)
		}
	}
}

// readLine reads the next line including its newline into r.line. The
// returned bool reports whether a newline was found.
func (r *Resolver) readLine(rd *bufio.Reader) (bool, error) {
	r.line = r.line[:0]
	for {
		chunk, err := rd.ReadSlice('\n')
		r.line = append(r.line, chunk...)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return false, err
		}
	}
}

// parseLine turns one line, without its newline, into an interval. Lines with
// an unparsable or zero address, an unparsable or zero size, a range that
// wraps around the address space, or no name are rejected.
func (r *Resolver) parseLine(line []byte) bool {
	// The string aliases r.line; the interner copies the name it keeps.
	s := stringutil.ByteSlice2String(line)

	var fields [3]string
	if stringutil.FieldsN(s, fields[:]) < len(fields) {
		return false
	}

	start, err := libpf.ParseHex(fields[0])
	if err != nil || start == 0 {
		return false
	}
	size, err := libpf.ParseHex(fields[1])
	if err != nil || size == 0 {
		return false
	}
	end := start + size
	if end < start {
		return false
	}

	r.table.Append(Interval{
		Symbol: r.interner.Intern(fields[2], r.path),
		Start:  libpf.Address(start),
		End:    libpf.Address(end),
	})
	r.counters.linesParsed.Add(1)
	return true
}
