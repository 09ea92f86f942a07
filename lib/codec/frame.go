// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// frameHeaderSize is the length of the big-endian uint32 prefix.
const frameHeaderSize = 4

// DefaultMaxFrameSize bounds a single frame. Activity files are
// typically a few hundred kilobytes; 64 MiB leaves headroom for large
// lab files without letting one client exhaust memory.
const DefaultMaxFrameSize = 64 << 20

// ErrFrameTooLarge is returned when a frame header announces a
// payload larger than the reader's limit, or when a value to be
// written does not fit in a frame.
var ErrFrameTooLarge = errors.New("frame too large")

// WriteFrame encodes v as CBOR and writes it to w as a single
// length-prefixed frame. Header and payload go out in one Write call
// so concurrent writers on a pipe never interleave partial frames.
func WriteFrame(w io.Writer, v any) error {
	payload, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	return WriteRawFrame(w, payload)
}

// WriteRawFrame writes an already encoded payload as one frame.
func WriteRawFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buffer := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buffer, uint32(len(payload)))
	copy(buffer[frameHeaderSize:], payload)
	if _, err := w.Write(buffer); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// ReadRawFrame reads one frame from r and returns its payload.
//
// A clean end of stream before the first header byte returns io.EOF
// unwrapped, so callers can tell "peer closed between messages" apart
// from a truncated frame (io.ErrUnexpectedEOF).
func ReadRawFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if uint64(size) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFrameTooLarge, size, maxSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}

// ReadFrame reads one frame from r and decodes its CBOR payload into
// v. See ReadRawFrame for end-of-stream semantics.
func ReadFrame(r io.Reader, maxSize int, v any) error {
	payload, err := ReadRawFrame(r, maxSize)
	if err != nil {
		return err
	}
	if err := Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}
	return nil
}
