// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress shrinks activity payloads while they wait in the
// admission queue and travel to a worker process.
//
// A full queue holds queue-size activity files in memory at once.
// Activity files are XML wrapped in a light binary envelope and
// usually compress well, so admission stores them compressed and the
// worker expands them right before processing. Payloads that do not
// shrink are kept as-is under Tag None.
package compress

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the algorithm a payload was compressed with. The
// numeric values travel to worker processes and must not change.
type Tag uint8

const (
	// None: payload stored verbatim.
	None Tag = 0

	// LZ4: LZ4 block format. Cheap to produce, fast to expand.
	LZ4 Tag = 1

	// Zstd: zstd at the default level. Better ratio for XML-heavy
	// payloads at a higher CPU cost on admission.
	Zstd Tag = 2
)

// String returns the configuration name of the tag.
func (tag Tag) String() string {
	switch tag {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseTag parses a configuration name.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4 or zstd)", name)
	}
}

// errIncompressible signals that compressing did not make the payload
// smaller.
var errIncompressible = errors.New("payload is incompressible")

// Compress compresses payload with tag. If the result would not be
// smaller, it returns the payload unchanged with None, so the
// returned tag is the one to record.
func Compress(payload []byte, tag Tag) ([]byte, Tag, error) {
	var (
		compressed []byte
		err        error
	)
	switch tag {
	case None:
		return payload, None, nil
	case LZ4:
		compressed, err = compressLZ4(payload)
	case Zstd:
		compressed, err = compressZstd(payload)
	default:
		return nil, 0, fmt.Errorf("unsupported compression tag %d", uint8(tag))
	}
	if errors.Is(err, errIncompressible) {
		return payload, None, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, tag, nil
}

// Decompress reverses Compress. size must be the exact uncompressed
// length; any mismatch is an error.
func Decompress(data []byte, tag Tag, size int) ([]byte, error) {
	switch tag {
	case None:
		if len(data) != size {
			return nil, fmt.Errorf("uncompressed payload is %d bytes, expected %d", len(data), size)
		}
		return data, nil
	case LZ4:
		return decompressLZ4(data, size)
	case Zstd:
		return decompressZstd(data, size)
	default:
		return nil, fmt.Errorf("unsupported compression tag %d", uint8(tag))
	}
}

func compressLZ4(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errIncompressible
	}
	destination := make([]byte, lz4.CompressBlockBound(len(payload)))
	written, err := lz4.CompressBlock(payload, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock reports 0 for data it cannot compress.
	if written == 0 || written >= len(payload) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(data []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(data, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

// zstd encoders and decoders are safe for concurrent use and costly to
// build, so one of each serves the process.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(payload []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(payload, nil)
	if len(compressed) >= len(payload) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(data []byte, size int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
	}
	return result, nil
}
