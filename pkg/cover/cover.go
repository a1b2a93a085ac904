// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package cover defines the coverage sample type and the framed wire format
// used between the agent and the monitor.
//
// The format is deliberately minimal: a 4-byte count in native byte order
// followed by count word-sized PC values. There is no magic and no version,
// both ends of the pipe are always the same build.
package cover

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Sample is the coverage collected while executing exactly one statement:
// an ordered sequence of control-flow addresses. Samples are never empty,
// an empty sample on the wire is a protocol violation.
type Sample []uint64

// WordSize is the size of one coverage PC on the wire. The only supported
// target is linux/amd64, so the platform word is fixed at 8 bytes.
const WordSize = 8

// MaxSampleLen bounds the number of PCs in a single sample. The count field
// is validated against it before any allocation happens, so a corrupted
// length prefix cannot make the reader allocate gigabytes.
const MaxSampleLen = 1 << 22

// WriteSample frames and writes one sample.
// Empty samples are rejected: a statement that executed successfully
// always produces coverage, anything else indicates broken instrumentation.
func WriteSample(w io.Writer, s Sample) error {
	if len(s) == 0 {
		return fmt.Errorf("cover: refusing to write empty sample")
	}
	if len(s) > MaxSampleLen {
		return fmt.Errorf("cover: sample too large: %v PCs", len(s))
	}
	buf := make([]byte, 4+len(s)*WordSize)
	binary.NativeEndian.PutUint32(buf, uint32(len(s)))
	for i, pc := range s {
		binary.NativeEndian.PutUint64(buf[4+i*WordSize:], pc)
	}
	_, err := w.Write(buf)
	return err
}

// ReadSample reads exactly one framed sample.
// Returns io.EOF if the stream ends cleanly before the count field.
func ReadSample(r io.Reader) (Sample, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("cover: failed to read sample count: %w", err)
	}
	count := binary.NativeEndian.Uint32(hdr[:])
	if count == 0 {
		return nil, fmt.Errorf("cover: empty sample on the wire")
	}
	if count > MaxSampleLen {
		return nil, fmt.Errorf("cover: implausible sample count %v (max %v)", count, MaxSampleLen)
	}
	buf := make([]byte, int(count)*WordSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("cover: failed to read %v PCs: %w", count, err)
	}
	s := make(Sample, count)
	for i := range s {
		s[i] = binary.NativeEndian.Uint64(buf[i*WordSize:])
	}
	return s, nil
}
