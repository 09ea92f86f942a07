// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Activityq-worker is the process the activityq server runs per pool
// slot. It reads tasks from stdin and writes outcomes to stdout as
// length-prefixed CBOR frames, and exits when stdin is closed. It is
// not meant to be run by hand; see package lib/worker for the flags
// the server passes.
package main

import (
	"os"

	"github.com/bureau-foundation/activityq/lib/worker"
)

func main() {
	os.Exit(worker.Main(os.Args[1:]))
}
