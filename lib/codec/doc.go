// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration and the
// length-prefixed framing shared by every activityq protocol.
//
// Two links use it: client to server over the unix socket, and
// server to worker process over the worker's stdin and stdout. Both
// exchange frames: a 4-byte big-endian payload length followed by one
// CBOR value encoded with Core Deterministic Encoding (RFC 8949
// §4.2). The length prefix lets a reader reject oversized messages
// before allocating for them and lets non-Go clients read a message
// without a streaming CBOR parser.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For framed streams (sockets, pipes):
//
//	err := codec.WriteFrame(conn, request)
//	err = codec.ReadFrame(conn, codec.DefaultMaxFrameSize, &response)
//
// Types carry `cbor` struct tags. Field names on the wire are
// snake_case and match the message names used by client bindings in
// other languages.
package codec
