// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package activity

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest identifies an activity payload. It is a BLAKE3 keyed hash of
// the uncompressed bytes, computed at admission, logged with the task
// and checked by the worker after the payload crossed the pipe.
type Digest [32]byte

// payloadDomainKey separates payload digests from any other BLAKE3
// use: the ASCII domain name, zero padded to the 32-byte key size.
var payloadDomainKey = [32]byte{
	'a', 'c', 't', 'i', 'v', 'i', 't', 'y', 'q', '.', 'p', 'a', 'y', 'l', 'o', 'a',
	'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashPayload computes the digest of an uncompressed payload.
func HashPayload(payload []byte) Digest {
	hasher, err := blake3.NewKeyed(payloadDomainKey[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("activity: blake3 keyed hasher: " + err.Error())
	}
	hasher.Write(payload)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// String returns the hex encoding.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 12 hex characters, enough to correlate log
// lines.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:6])
}
