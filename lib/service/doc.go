// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service serves and calls the activityq client protocol on a
// Unix socket.
//
// Each connection carries exactly one exchange: the client writes one
// length-prefixed CBOR frame, the server routes it on its "kind" field
// to a registered handler, writes one response frame, and closes the
// connection. Handler errors become responses of kind "error" so a
// client always receives a well-formed reply.
//
// The server bounds concurrent connections, applies read and write
// deadlines to every connection, and drains in-flight handlers before
// Serve returns.
package service
